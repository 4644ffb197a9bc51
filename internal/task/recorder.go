package task

import (
	"context"
	"log/slog"
	"time"

	"FaucetPilot/internal/cycle"
	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/events"
	"FaucetPilot/internal/observability/alerting"
	"FaucetPilot/internal/observability/metrics"
	"FaucetPilot/pkg/logger"
)

// Recorder 处理执行单元发出的终止信号：记录日志与审计、更新指标、写入历史并投递事件。
type Recorder struct {
	store     RunStore
	publisher events.Publisher
	alerts    alerting.Dispatcher
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// RecorderOption 自定义 Recorder。
type RecorderOption func(*Recorder)

// WithPublisher 设置事件投递器。
func WithPublisher(p events.Publisher) RecorderOption {
	return func(r *Recorder) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithAlerts 设置告警分发器，只有严重级别为 critical 的失败会触发告警。
func WithAlerts(d alerting.Dispatcher) RecorderOption {
	return func(r *Recorder) { r.alerts = d }
}

// WithRecordTimeout 设置单次写入历史与投递事件的超时。
func WithRecordTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder 创建 Recorder，store 为空时不保存历史。
func NewRecorder(store RunStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:     store,
		publisher: events.Noop{},
		timeout:   5 * time.Second,
		now:       time.Now,
		log:       logger.Named("supervisor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Handle 处理一个终止信号并返回对应的执行记录。
// 写历史与投递事件不受调用方 ctx 取消的影响，以便关闭时最后的信号也能落盘。
func (r *Recorder) Handle(ctx context.Context, c cycle.Completion) *Run {
	run := NewRun(c, r.now())
	metrics.ObserveCycle(string(run.Status))

	attrs := []any{
		"account", c.Account.Short(),
		"cycle", run.Cycle,
		"status", run.Status,
		"transfers", run.Transfers,
		"points", run.Points,
	}
	switch run.Status {
	case StatusSucceeded:
		r.log.Info("账户周期完成", append(attrs, "succeeded_actions", run.Succeeded())...)
	case StatusCancelled:
		r.log.Info("账户周期被取消", attrs...)
	default:
		r.log.Error("账户执行单元终止", append(attrs, "error_code", run.ErrorCode, "error", run.Error)...)
	}
	logger.Audit().Info("周期终止信号",
		slog.String("run_id", run.ID),
		slog.String("address", run.Address),
		slog.Int("cycle", run.Cycle),
		slog.String("status", string(run.Status)),
		slog.String("error_code", run.ErrorCode),
		slog.Int("transfers", run.Transfers),
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if r.store != nil {
		if err := r.store.Record(writeCtx, run); err != nil {
			r.log.Warn("写入执行记录失败", "run_id", run.ID, "error", err)
		}
	}
	if err := r.publisher.Publish(writeCtx, run.Address, run); err != nil {
		r.log.Warn("投递周期事件失败", "run_id", run.ID, "error", err)
	}
	if r.alerts != nil && run.Status == StatusFailed && xerrors.SeverityOf(c.Err) == xerrors.SeverityCritical {
		event := alerting.Event{
			Code:       xerrors.CodeOf(c.Err),
			Message:    run.Error,
			Severity:   xerrors.SeverityCritical,
			Account:    c.Account.Short(),
			Cycle:      run.Cycle,
			RunID:      run.ID,
			OccurredAt: r.now(),
		}
		if err := r.alerts.Notify(writeCtx, event); err != nil {
			r.log.Warn("发送告警失败", "run_id", run.ID, "error", err)
		}
	}
	return run
}
