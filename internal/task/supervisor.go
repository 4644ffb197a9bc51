package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
	"FaucetPilot/pkg/logger"
)

// Supervisor 为每个账户启动一个独立的执行单元，并汇总它们的终止信号。
type Supervisor struct {
	runner      UnitRunner
	recorder    *Recorder
	launchDelay time.Duration
	clock       cycle.Clock
	log         *slog.Logger
}

// SupervisorOption 自定义 Supervisor。
type SupervisorOption func(*Supervisor)

// WithLaunchDelay 设置相邻执行单元的启动间隔。
func WithLaunchDelay(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d >= 0 {
			s.launchDelay = d
		}
	}
}

// WithSupervisorClock 替换启动间隔使用的时钟。
func WithSupervisorClock(clock cycle.Clock) SupervisorOption {
	return func(s *Supervisor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSupervisor 构造 Supervisor。
func NewSupervisor(runner UnitRunner, recorder *Recorder, opts ...SupervisorOption) *Supervisor {
	if recorder == nil {
		recorder = NewRecorder(nil)
	}
	s := &Supervisor{
		runner:      runner,
		recorder:    recorder,
		launchDelay: 5 * time.Second,
		clock:       cycle.SystemClock(),
		log:         logger.Named("supervisor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunAll 依次启动全部账户的执行单元，直到所有单元结束或 ctx 取消后返回。
// 单个单元的失败或崩溃不会取消其他单元。
func (s *Supervisor) RunAll(ctx context.Context, accounts []account.Account) error {
	if len(accounts) == 0 {
		s.log.Warn("名册为空，没有可启动的执行单元")
		return nil
	}
	completions := make(chan cycle.Completion, len(accounts))
	emit := func(c cycle.Completion) { completions <- c }

	var units sync.WaitGroup
	units.Add(1)
	go func() {
		defer units.Done()
		for i, acct := range accounts {
			if i > 0 {
				if err := s.clock.Sleep(ctx, s.launchDelay); err != nil {
					s.log.Info("启动被取消", "launched", i, "total", len(accounts))
					return
				}
			}
			units.Add(1)
			go func(acct account.Account) {
				defer units.Done()
				s.log.Info("启动执行单元", "account", acct.Short(), "index", acct.Index)
				if err := runUnit(ctx, s.runner, acct, emit, s.log); err != nil && !cycle.IsCancellation(err) {
					s.log.Warn("执行单元退出", "account", acct.Short(), "error", err)
				}
			}(acct)
		}
	}()
	go func() {
		units.Wait()
		close(completions)
	}()

	for c := range completions {
		s.recorder.Handle(ctx, c)
	}
	s.log.Info("全部执行单元已结束", "accounts", len(accounts))
	return ctx.Err()
}
