package task

import (
	"context"
	"log/slog"
	"time"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
	"FaucetPilot/pkg/logger"
)

// Dispatcher 将名册中的账户逐个投递到队列，供多个 worker 进程各自运行一个执行单元。
type Dispatcher struct {
	producer    Producer
	launchDelay time.Duration
	clock       cycle.Clock
	log         *slog.Logger
}

// NewDispatcher 构造 Dispatcher。
func NewDispatcher(producer Producer, launchDelay time.Duration, clock cycle.Clock) *Dispatcher {
	if clock == nil {
		clock = cycle.SystemClock()
	}
	if launchDelay < 0 {
		launchDelay = 0
	}
	return &Dispatcher{
		producer:    producer,
		launchDelay: launchDelay,
		clock:       clock,
		log:         logger.Named("dispatcher"),
	}
}

// Dispatch 按启动间隔投递全部账户，返回已投递的数量。
func (d *Dispatcher) Dispatch(ctx context.Context, accounts []account.Account) (int, error) {
	for i, acct := range accounts {
		if i > 0 {
			if err := d.clock.Sleep(ctx, d.launchDelay); err != nil {
				return i, err
			}
		}
		msg := Dispatch{Address: acct.Address.Hex(), DispatchedAt: d.clock.Now().Unix()}
		if err := d.producer.Publish(ctx, msg); err != nil {
			d.log.Error("投递账户失败", "account", acct.Short(), "error", err)
			return i, err
		}
		logger.Audit().Info("账户已投递",
			slog.String("address", msg.Address),
			slog.Int("index", acct.Index),
		)
	}
	d.log.Info("账户投递完成", "accounts", len(accounts))
	return len(accounts), nil
}
