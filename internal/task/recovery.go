package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/observability/metrics"
)

// UnitRunner 是一个账户执行单元，cycle.Orchestrator 满足该接口。
// Run 每完成一项职责调用一次 emit，并在致命错误或 ctx 取消时返回。
type UnitRunner interface {
	Run(ctx context.Context, acct account.Account, emit func(cycle.Completion)) error
}

// runUnit 运行执行单元并隔离 panic：崩溃被转换为 UNIT_PANIC 终止信号，不会影响其他单元。
func runUnit(ctx context.Context, runner UnitRunner, acct account.Account, emit func(cycle.Completion), log *slog.Logger) (err error) {
	metrics.UnitStarted()
	defer metrics.UnitStopped()

	current := acct
	cycleNo := 0
	track := func(c cycle.Completion) {
		current, cycleNo = c.Account, c.Cycle
		emit(c)
	}
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(CodeUnitPanic, fmt.Sprintf("执行单元崩溃: %v", r))
			log.Error("执行单元崩溃",
				"account", current.Short(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			emit(cycle.Completion{Account: current, Cycle: cycleNo + 1, Err: err})
		}
	}()
	return runner.Run(ctx, acct, track)
}
