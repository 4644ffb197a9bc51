package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/config"
	"FaucetPilot/internal/cycle"
	"FaucetPilot/internal/cypher"
	"FaucetPilot/internal/events"
	"FaucetPilot/internal/observability/alerting"
	"FaucetPilot/internal/storage/sqldb"
	"FaucetPilot/internal/task"
	"FaucetPilot/internal/web3/ethereum"
	"FaucetPilot/pkg/logger"
)

// app 持有一次进程运行所需的全部组件。
type app struct {
	cfg          *config.Config
	roster       account.Store
	chain        *ethereum.Client
	orchestrator *cycle.Orchestrator
	history      task.RunStore
	recorder     *task.Recorder
	closers      []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("释放资源失败", "error", err)
		}
	}
	a.closers = nil
}

// openRoster 只打开账户名册，wallet 子命令不需要链与服务客户端。
func openRoster(ctx context.Context, cfg config.AccountsConfig) (account.Store, error) {
	switch cfg.Driver {
	case "", "file":
		return account.NewFileStore(cfg.Path)
	case "mysql":
		db, err := sqldb.Open(ctx, sqlConfig(sqldb.DialectMySQL, cfg.MySQL))
		if err != nil {
			return nil, err
		}
		store, err := account.NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的账户存储驱动: %s", cfg.Driver)
	}
}

func openHistory(ctx context.Context, cfg config.HistoryConfig) (task.RunStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryStore(cfg.Path)
	case "mysql":
		db, err := sqldb.Open(ctx, sqlConfig(sqldb.DialectMySQL, cfg.MySQL))
		if err != nil {
			return nil, err
		}
		store, err := task.NewSQLStore(ctx, db, sqldb.DialectMySQL)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("创建历史目录失败: %w", err)
		}
		db, err := sqldb.Open(ctx, sqldb.Config{Dialect: sqldb.DialectSQLite, DSN: cfg.Path})
		if err != nil {
			return nil, err
		}
		store, err := task.NewSQLStore(ctx, db, sqldb.DialectSQLite)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的历史记录驱动: %s", cfg.Driver)
	}
}

func sqlConfig(dialect sqldb.Dialect, cfg config.MySQLConfig) sqldb.Config {
	return sqldb.Config{
		Dialect:         dialect,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
	}
}

// requireSharedQueue 确保 dispatch 与 worker 跨进程共享同一个队列；内存队列随进程退出而消失。
func requireSharedQueue(cfg config.QueueConfig) error {
	switch cfg.Driver {
	case "", "memory":
		return errors.New("dispatch 与 worker 需要跨进程队列，请将 queue.driver 设置为 redis 或 rabbitmq")
	}
	return nil
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(cfg.Size), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: cfg.Redis.BlockWait.Std(),
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

// buildApp 组装名册、链客户端、服务客户端、周期编排器与历史记录。
// cycleLimit 大于 0 时覆盖配置中的轮数限制。
func buildApp(ctx context.Context, cfg *config.Config, cycleLimit int) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	roster, err := openRoster(ctx, cfg.Accounts)
	if err != nil {
		return nil, err
	}
	a.roster = roster
	a.onClose(roster.Close)

	chain, err := ethereum.NewClient(ctx, ethereum.Config{
		RPCURL:         cfg.Network.RPCURL,
		ChainID:        cfg.Network.ChainID,
		CallTimeout:    cfg.Network.CallTimeout.Std(),
		ConfirmTimeout: cfg.Network.ConfirmTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	a.chain = chain
	a.onClose(func() error { chain.Close(); return nil })

	client, err := cypher.NewClient(cypher.Config{
		Endpoint:  cfg.Service.Endpoint,
		Origin:    cfg.Service.Origin,
		Referer:   cfg.Service.Referer,
		UserAgent: cfg.Service.UserAgent,
		Actions: cypher.Actions{
			GetPoints:         cfg.Service.Actions.GetPoints,
			GetTransferCount:  cfg.Service.Actions.GetTransferCount,
			UpdatePoints:      cfg.Service.Actions.UpdatePoints,
			ClaimFaucet:       cfg.Service.Actions.ClaimFaucet,
			RecordTransaction: cfg.Service.Actions.RecordTransaction,
		},
		Timeout:           cfg.Service.Timeout.Std(),
		RequestsPerSecond: cfg.Service.RequestsPerSecond,
		Burst:             cfg.Service.Burst,
	}, nil)
	if err != nil {
		return nil, err
	}
	contracts := cfg.Network.Contracts
	svc := cypher.NewService(client, chain, cypher.Contracts{
		Faucet:          common.HexToAddress(contracts.Faucet),
		FaucetEncrypted: common.HexToAddress(contracts.FaucetEncrypted),
		ERC20Deployer:   common.HexToAddress(contracts.ERC20Deployer),
	})

	params, err := cycleParams(cfg, cycleLimit)
	if err != nil {
		return nil, err
	}
	orchestrator, err := cycle.New(chain, svc, roster, params)
	if err != nil {
		return nil, err
	}
	a.orchestrator = orchestrator

	history, err := openHistory(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	a.history = history
	a.onClose(history.Close)

	publisher, err := events.New(events.KafkaConfig{
		Brokers: cfg.Events.Kafka.Brokers,
		Topic:   cfg.Events.Kafka.Topic,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(publisher.Close)
	a.recorder = task.NewRecorder(history,
		task.WithPublisher(publisher),
		task.WithAlerts(buildAlerts(cfg.Alerts)),
	)

	ok = true
	return a, nil
}

func cycleParams(cfg *config.Config, cycleLimit int) (cycle.Params, error) {
	threshold, err := decimal.NewFromString(cfg.Cycle.TransferThreshold)
	if err != nil {
		return cycle.Params{}, fmt.Errorf("cycle.transfer_threshold 无法解析: %w", err)
	}
	amount, err := decimal.NewFromString(cfg.Cycle.TransferAmount)
	if err != nil {
		return cycle.Params{}, fmt.Errorf("cycle.transfer_amount 无法解析: %w", err)
	}
	if cycleLimit <= 0 {
		cycleLimit = cfg.Cycle.CycleLimit
	}
	contracts := cfg.Network.Contracts
	return cycle.Params{
		ChainID: big.NewInt(cfg.Network.ChainID),
		Contracts: cycle.Contracts{
			FaucetEncrypted:  common.HexToAddress(contracts.FaucetEncrypted),
			ERC20Deployer:    common.HexToAddress(contracts.ERC20Deployer),
			WrappedToken:     common.HexToAddress(contracts.WrappedToken),
			TransferReceiver: common.HexToAddress(contracts.TransferReceiver),
		},
		ActionDelay:       cfg.Cycle.ActionDelay.Std(),
		TransferDelay:     cfg.Cycle.TransferDelay.Std(),
		RetryBackoff:      cfg.Cycle.RetryBackoff.Std(),
		TransferThreshold: threshold,
		TransferAmount:    amount,
		TransferCap:       cfg.Cycle.TransferCap,
		TransferGasLimit:  cfg.Cycle.TransferGasLimit,
		CycleLimit:        cycleLimit,
	}, nil
}

// loadRoster 读取名册，为空时先生成一个账户。
func loadRoster(ctx context.Context, roster account.Store) ([]account.Account, error) {
	accounts, err := roster.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		logger.L().Info("名册为空，生成首个账户")
		acct, err := roster.Mint(ctx)
		if err != nil {
			return nil, err
		}
		logger.L().Info("已生成账户", "account", acct.Short())
		accounts = []account.Account{acct}
	}
	logger.L().Info("名册已加载", "accounts", len(accounts))
	return accounts, nil
}

func buildAlerts(cfg config.AlertsConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	for _, hook := range cfg.Webhooks {
		notifiers = append(notifiers, &alerting.WebhookNotifier{Kind: alerting.Channel(hook.Kind), URL: hook.URL})
	}
	return alerting.NewFanout(notifiers...)
}
