// Package alerting notifies operators when an execution unit ends abnormally,
// for example an account whose key cannot be used or a unit that crashed.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog      Channel = "log"
	ChannelDingTalk Channel = "dingtalk"
	ChannelSlack    Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Account    string
	Cycle      int
	RunID      string
	OccurredAt time.Time
}

func (e Event) text() string {
	return fmt.Sprintf("[%s] %s\n账户: %s 周期: %d\n执行记录: %s\n%s",
		e.Severity, e.Code, e.Account, e.Cycle, e.RunID, e.Message)
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers []Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			set = append(set, n)
		}
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 把告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 写入审计日志。
func (LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Audit().Warn("执行单元告警",
		"code", string(event.Code),
		"severity", string(event.Severity),
		"account", event.Account,
		"cycle", event.Cycle,
		"run_id", event.RunID,
		"message", event.Message,
	)
	return nil
}

// WebhookNotifier 通过钉钉或 Slack 的 incoming webhook 发送告警。
type WebhookNotifier struct {
	Kind   Channel
	URL    string
	Client *http.Client
}

// Channel 返回 webhook 对应的渠道。
func (n *WebhookNotifier) Channel() Channel { return n.Kind }

// Notify 按渠道格式发送 JSON 消息。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		logger.L().Warn("webhook 未正确配置，跳过发送", "run_id", event.RunID)
		return nil
	}
	var payload any
	switch n.Kind {
	case ChannelDingTalk:
		payload = map[string]any{"msgtype": "text", "text": map[string]string{"content": event.text()}}
	case ChannelSlack:
		payload = map[string]string{"text": event.text()}
	default:
		return fmt.Errorf("不支持的 webhook 渠道: %s", n.Kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}
