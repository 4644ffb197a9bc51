package cypher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/pkg/logger"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

const maxResponseBytes = 4 << 20

// Actions 保存各个 server action 的标识。
type Actions struct {
	GetPoints         string
	GetTransferCount  string
	UpdatePoints      string
	ClaimFaucet       string
	RecordTransaction string
}

// Config describes the server action endpoint.
type Config struct {
	Endpoint  string
	Origin    string
	Referer   string
	UserAgent string
	Actions   Actions
	Timeout   time.Duration
	// RequestsPerSecond 为 0 时不限速。
	RequestsPerSecond float64
	Burst             int
}

// ClaimResult 是 claimFaucet 的返回值。
type ClaimResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Client wraps the HTTP interactions with the Cypher testnet server actions.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient instantiates a client. When httpClient is nil, a default client
// bounded by cfg.Timeout is used.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置服务地址")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{cfg: cfg, httpClient: httpClient, limiter: limiter}, nil
}

// Endpoint returns the service URL, which doubles as the URI in signed proofs.
func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// Points 查询账户积分。
func (c *Client) Points(ctx context.Context, addr common.Address) (int64, error) {
	raw, err := c.call(ctx, c.cfg.Actions.GetPoints, addr.Hex())
	if err != nil {
		return 0, err
	}
	return intOrZero(raw), nil
}

// TransferCount 查询当日已完成的加密转账次数。
func (c *Client) TransferCount(ctx context.Context, addr common.Address) (int64, error) {
	raw, err := c.call(ctx, c.cfg.Actions.GetTransferCount, addr.Hex())
	if err != nil {
		return 0, err
	}
	return intOrZero(raw), nil
}

// UpdatePoints 请求服务端重新结算积分并返回最新值。
func (c *Client) UpdatePoints(ctx context.Context, addr common.Address) (int64, error) {
	raw, err := c.call(ctx, c.cfg.Actions.UpdatePoints, addr.Hex())
	if err != nil {
		return 0, err
	}
	return intOrZero(raw), nil
}

// ClaimFaucet 提交签名凭证领取原生代币。
func (c *Client) ClaimFaucet(ctx context.Context, addr common.Address, token string) (ClaimResult, error) {
	raw, err := c.call(ctx, c.cfg.Actions.ClaimFaucet, map[string]string{
		"address": addr.Hex(),
		"token":   token,
	})
	if err != nil {
		return ClaimResult{}, err
	}
	var result ClaimResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			logger.Named("cypher").Debug("claimFaucet 返回了无法识别的载荷", "payload", string(raw))
			result = ClaimResult{}
		}
	}
	return result, nil
}

// RecordTransaction 上报一次已完成的链上动作。
func (c *Client) RecordTransaction(ctx context.Context, record TransactionRecord) error {
	_, err := c.call(ctx, c.cfg.Actions.RecordTransaction, record)
	return err
}

func (c *Client) call(ctx context.Context, action string, args ...any) (json.RawMessage, error) {
	if action == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "server action 标识为空")
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码请求失败")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "创建请求失败")
	}
	req.Header.Set("accept", "text/x-component")
	req.Header.Set("content-type", "text/plain;charset=UTF-8")
	req.Header.Set("next-action", action)
	if c.cfg.Origin != "" {
		req.Header.Set("origin", c.cfg.Origin)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("referer", c.cfg.Referer)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("user-agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "服务请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeTransientNetwork, err, "服务请求失败")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransientNetwork, err, "读取服务响应失败")
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, xerrors.New(xerrors.CodeTransientNetwork, fmt.Sprintf("服务返回状态码 %d", resp.StatusCode))
	}

	raw := ParseEnvelope(data)
	if raw == nil {
		logger.Named("cypher").Debug("响应缺少载荷行，按默认值处理",
			"action", action,
			"status", resp.StatusCode,
			"error_code", xerrors.CodeProtocolParse)
	}
	return raw, nil
}
