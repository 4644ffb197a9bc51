package task

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/pkg/logger"
)

// Worker 从队列领取账户并运行执行单元，终止信号与进程内 Supervisor 一样交给 Recorder。
type Worker struct {
	consumer    Consumer
	roster      account.Store
	runner      UnitRunner
	recorder    *Recorder
	workerCount int
	log         *slog.Logger
}

// WorkerOption 自定义 Worker。
type WorkerOption func(*Worker)

// WithWorkerCount 设置同时运行的执行单元数量。
func WithWorkerCount(count int) WorkerOption {
	return func(w *Worker) {
		if count > 0 {
			w.workerCount = count
		}
	}
}

// NewWorker 构造 Worker。
func NewWorker(consumer Consumer, roster account.Store, runner UnitRunner, recorder *Recorder, opts ...WorkerOption) *Worker {
	if recorder == nil {
		recorder = NewRecorder(nil)
	}
	w := &Worker{
		consumer:    consumer,
		roster:      roster,
		runner:      runner,
		recorder:    recorder,
		workerCount: 1,
		log:         logger.Named("worker"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start 阻塞消费队列直到 ctx 取消。
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info("worker 启动", "concurrency", w.workerCount)
	return w.consumer.Consume(ctx, w.workerCount, w.Handle)
}

// Handle 处理一条分配消息。只有被中断的单元返回错误，使队列可以把账户交给其他 worker。
func (w *Worker) Handle(ctx context.Context, msg Dispatch) error {
	addr := common.HexToAddress(msg.Address)
	accounts, err := w.roster.List(ctx)
	if err != nil {
		w.log.Error("读取名册失败", "address", msg.Address, "error", err)
		return err
	}
	acct, ok := account.Find(accounts, addr)
	if !ok {
		w.log.Warn("名册中不存在该账户，丢弃分配", "address", msg.Address)
		return nil
	}

	emit := func(c cycle.Completion) { w.recorder.Handle(ctx, c) }
	err = runUnit(ctx, w.runner, acct, emit, w.log)
	switch {
	case err == nil:
		return nil
	case cycle.IsCancellation(err):
		return err
	default:
		w.log.Warn("执行单元终止", "account", acct.Short(), "error_code", xerrors.CodeOf(err), "error", err)
		return nil
	}
}
