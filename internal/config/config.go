package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"FaucetPilot/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "FAUCETPILOT_CONFIG"

// Config 描述了 FaucetPilot 在启动阶段需要加载的全部配置。
type Config struct {
	Network    NetworkConfig    `json:"network" yaml:"network"`
	Service    ServiceConfig    `json:"service" yaml:"service"`
	Cycle      CycleConfig      `json:"cycle" yaml:"cycle"`
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor"`
	Accounts   AccountsConfig   `json:"accounts" yaml:"accounts"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	History    HistoryConfig    `json:"history" yaml:"history"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    logger.Config    `json:"logging" yaml:"logging"`
}

// NetworkConfig 汇总测试网的链参数与合约地址。
type NetworkConfig struct {
	ChainID        int64           `json:"chain_id" yaml:"chain_id"`
	NativeToken    string          `json:"native_token" yaml:"native_token"`
	WrappedToken   string          `json:"wrapped_token" yaml:"wrapped_token"`
	RPCURL         string          `json:"rpc_url" yaml:"rpc_url"`
	ExplorerURL    string          `json:"explorer_url" yaml:"explorer_url"`
	Contracts      ContractsConfig `json:"contracts" yaml:"contracts"`
	CallTimeout    Duration        `json:"call_timeout" yaml:"call_timeout"`
	ConfirmTimeout Duration        `json:"confirm_timeout" yaml:"confirm_timeout"`
}

// ContractsConfig 列出周期任务会调用的合约。
type ContractsConfig struct {
	Faucet           string `json:"faucet" yaml:"faucet"`
	FaucetEncrypted  string `json:"faucet_encrypted" yaml:"faucet_encrypted"`
	ERC20Deployer    string `json:"erc20_deployer" yaml:"erc20_deployer"`
	WrappedToken     string `json:"wrapped_token" yaml:"wrapped_token"`
	TransferReceiver string `json:"transfer_receiver" yaml:"transfer_receiver"`
}

// ServiceConfig 描述测试网站点的 server action 接口。
type ServiceConfig struct {
	Endpoint          string        `json:"endpoint" yaml:"endpoint"`
	Origin            string        `json:"origin" yaml:"origin"`
	Referer           string        `json:"referer" yaml:"referer"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	Actions           ActionsConfig `json:"actions" yaml:"actions"`
	Timeout           Duration      `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
}

// ActionsConfig 保存各个 server action 的标识。
type ActionsConfig struct {
	GetPoints         string `json:"get_points" yaml:"get_points"`
	GetTransferCount  string `json:"get_transfer_count" yaml:"get_transfer_count"`
	UpdatePoints      string `json:"update_points" yaml:"update_points"`
	ClaimFaucet       string `json:"claim_faucet" yaml:"claim_faucet"`
	RecordTransaction string `json:"record_transaction" yaml:"record_transaction"`
}

// CycleConfig 控制单个账户日常周期的节奏与阈值。
type CycleConfig struct {
	ActionDelay       Duration `json:"action_delay" yaml:"action_delay"`
	TransferDelay     Duration `json:"transfer_delay" yaml:"transfer_delay"`
	RetryBackoff      Duration `json:"retry_backoff" yaml:"retry_backoff"`
	TransferThreshold string   `json:"transfer_threshold" yaml:"transfer_threshold"`
	TransferAmount    string   `json:"transfer_amount" yaml:"transfer_amount"`
	TransferCap       int64    `json:"transfer_cap" yaml:"transfer_cap"`
	TransferGasLimit  uint64   `json:"transfer_gas_limit" yaml:"transfer_gas_limit"`
	CycleLimit        int      `json:"cycle_limit" yaml:"cycle_limit"`
}

// SupervisorConfig 控制账户执行单元的启动方式。
type SupervisorConfig struct {
	LaunchDelay Duration `json:"launch_delay" yaml:"launch_delay"`
	WorkerCount int      `json:"worker_count" yaml:"worker_count"`
}

// AccountsConfig 描述账户名册的存储后端。
type AccountsConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	Path   string      `json:"path" yaml:"path"`
	MySQL  MySQLConfig `json:"mysql" yaml:"mysql"`
}

// MySQLConfig 是 MySQL 连接池参数。
type MySQLConfig struct {
	DSN             string   `json:"dsn" yaml:"dsn"`
	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// QueueConfig 描述多进程模式下分发账户所用的队列。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Size     int            `json:"size" yaml:"size"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列参数。
type RedisConfig struct {
	Address   string   `json:"address" yaml:"address"`
	Password  string   `json:"password" yaml:"password"`
	DB        int      `json:"db" yaml:"db"`
	Queue     string   `json:"queue" yaml:"queue"`
	BlockWait Duration `json:"block_wait" yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// HistoryConfig 描述周期执行记录的存储后端。
type HistoryConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	Path   string      `json:"path" yaml:"path"`
	MySQL  MySQLConfig `json:"mysql" yaml:"mysql"`
}

// EventsConfig 控制周期报告的外部投递。
type EventsConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

// KafkaConfig 为空 Brokers 时禁用 Kafka 投递。
type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

// AlertsConfig 配置执行单元异常终止时的通知渠道。
type AlertsConfig struct {
	Webhooks []WebhookConfig `json:"webhooks" yaml:"webhooks"`
}

// WebhookConfig 描述一个 incoming webhook，Kind 取 dingtalk 或 slack。
type WebhookConfig struct {
	Kind string `json:"kind" yaml:"kind"`
	URL  string `json:"url" yaml:"url"`
}

// ServerConfig 控制状态 API 的监听地址，为空时不启动。
// MetricsAddress 仅在未启用状态 API 时单独暴露 /metrics。
type ServerConfig struct {
	Address        string `json:"address" yaml:"address"`
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address"`
}

// Duration 支持在配置文件中使用 "5s"、"2m" 等写法。
type Duration time.Duration

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalJSON 同时接受字符串与纳秒整数。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("解析时长 %q 失败: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("无法解析的时长: %s", string(data))
	}
	return nil
}

// MarshalJSON 以字符串形式输出。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML 接受 "5s" 形式的时长。
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("解析时长 %q 失败: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default 返回只包含默认值的配置，基准目录为当前工作目录。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load 负责解析指定路径的配置文件，按扩展名选择 YAML 或 JSON。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOptional 在文件不存在时回退到默认配置；其他错误照常返回。
func LoadOptional(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate 检查无法靠默认值兜底的字段。
func (c *Config) Validate() error {
	addresses := map[string]string{
		"network.contracts.faucet":            c.Network.Contracts.Faucet,
		"network.contracts.faucet_encrypted":  c.Network.Contracts.FaucetEncrypted,
		"network.contracts.erc20_deployer":    c.Network.Contracts.ERC20Deployer,
		"network.contracts.wrapped_token":     c.Network.Contracts.WrappedToken,
		"network.contracts.transfer_receiver": c.Network.Contracts.TransferReceiver,
	}
	for field, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s 不是合法地址: %q", field, value)
		}
	}
	switch c.Accounts.Driver {
	case "file", "mysql":
	default:
		return fmt.Errorf("未知的账户存储驱动: %s", c.Accounts.Driver)
	}
	switch c.History.Driver {
	case "memory", "mysql", "sqlite":
	default:
		return fmt.Errorf("未知的历史记录驱动: %s", c.History.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}
	for i, hook := range c.Alerts.Webhooks {
		switch hook.Kind {
		case "dingtalk", "slack":
		default:
			return fmt.Errorf("alerts.webhooks[%d] 的类型未知: %s", i, hook.Kind)
		}
	}
	if c.Cycle.TransferCap <= 0 {
		return errors.New("cycle.transfer_cap 必须大于 0")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置默认值，默认值取自 Cypher 测试网。
func (c *Config) applyDefaults(baseDir string) {
	n := &c.Network
	setInt64(&n.ChainID, 10112)
	setString(&n.NativeToken, "DEAI")
	setString(&n.WrappedToken, "eDEAI")
	setString(&n.RPCURL, "https://testnet-rpc3.cypher.z1labs.ai")
	setString(&n.ExplorerURL, "https://testnet3.cypherscan.ai/")
	setString(&n.Contracts.Faucet, "0x1e37834a08FC05036a0395a0f22bC103C0c00423")
	setString(&n.Contracts.FaucetEncrypted, "0x65C58fBAc4b80E89992469242D5BbDfB3D9bbf85")
	setString(&n.Contracts.ERC20Deployer, "0x82180b36C7261c0Aaee14d17a6e1c018009906a6")
	setString(&n.Contracts.WrappedToken, "0xb7229F1209d4c5bdc47996da3C64BecD84084025")
	setString(&n.Contracts.TransferReceiver, "0x91f5b89988f094566d7d0545a89fcb4d41269db4")
	setDuration(&n.CallTimeout, 30*time.Second)
	setDuration(&n.ConfirmTimeout, 3*time.Minute)

	s := &c.Service
	setString(&s.Endpoint, "https://cypher.z1labs.ai/testnet/")
	setString(&s.Origin, "https://cypher.z1labs.ai")
	setString(&s.Referer, "https://cypher.z1labs.ai/testnet/")
	setString(&s.UserAgent, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	setString(&s.Actions.GetPoints, "80ad9c835e1ebfdaabcab583bed2aebb8bd26b2d")
	setString(&s.Actions.GetTransferCount, "ebbb865fa3b98451581d6e68d4a47dd4eab2d009")
	setString(&s.Actions.UpdatePoints, "4f6d4ea7e72f6ea4d87b52b9ad967025b988b3aa")
	setString(&s.Actions.ClaimFaucet, "6debf06b9bd590627155a102bb73652212c36c45")
	setString(&s.Actions.RecordTransaction, "b6497c23110985f8ae23b8b3d7d9d5d11b5b5cdc")
	setDuration(&s.Timeout, 15*time.Second)
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = 5
	}
	if s.Burst <= 0 {
		s.Burst = 5
	}

	cy := &c.Cycle
	setDuration(&cy.ActionDelay, 5*time.Second)
	setDuration(&cy.TransferDelay, 5*time.Second)
	setDuration(&cy.RetryBackoff, 5*time.Second)
	setString(&cy.TransferThreshold, "1")
	setString(&cy.TransferAmount, "1")
	setInt64(&cy.TransferCap, 10)
	if cy.TransferGasLimit == 0 {
		cy.TransferGasLimit = 300000
	}

	setDuration(&c.Supervisor.LaunchDelay, 5*time.Second)
	if c.Supervisor.WorkerCount <= 0 {
		c.Supervisor.WorkerCount = 4
	}

	setString(&c.Accounts.Driver, "file")
	setString(&c.Accounts.Path, "accounts.json")
	c.Accounts.Path = resolvePath(baseDir, c.Accounts.Path)

	setString(&c.Queue.Driver, "memory")
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}
	setString(&c.Queue.Redis.Queue, "faucetpilot:accounts")
	setDuration(&c.Queue.Redis.BlockWait, 5*time.Second)
	setString(&c.Queue.RabbitMQ.Queue, "faucetpilot.accounts")

	setString(&c.History.Driver, "memory")
	if c.History.Driver == "sqlite" {
		setString(&c.History.Path, filepath.Join("data", "history.db"))
	}
	if c.History.Path != "" {
		c.History.Path = resolvePath(baseDir, c.History.Path)
	}

	setString(&c.Events.Kafka.Topic, "faucetpilot.cycle_reports")

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)
	}
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func setString(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func setInt64(field *int64, value int64) {
	if *field == 0 {
		*field = value
	}
}

func setDuration(field *Duration, value time.Duration) {
	if *field <= 0 {
		*field = Duration(value)
	}
}
