package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
)

type staticRoster struct {
	accounts []account.Account
}

func (r *staticRoster) List(context.Context) ([]account.Account, error) { return r.accounts, nil }
func (r *staticRoster) Mint(context.Context) (account.Account, error)   { return account.Generate() }
func (r *staticRoster) Close() error                                    { return nil }

func TestDispatcherAndWorkerOverMemoryQueue(t *testing.T) {
	accounts := newAccounts(t, 3)
	queue := NewMemoryQueue(8)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}

	dispatched, err := NewDispatcher(queue, 5*time.Second, clock).Dispatch(context.Background(), accounts)
	if err != nil || dispatched != 3 {
		t.Fatalf("dispatch: %d %v", dispatched, err)
	}
	if slept := clock.slept(); len(slept) != 2 {
		t.Fatalf("expected staggered dispatch, got %v", slept)
	}
	_ = queue.Close()

	var mu sync.Mutex
	handled := map[string]int{}
	runner := newFakeRunner(func(ctx context.Context, acct account.Account, emit func(cycle.Completion)) error {
		mu.Lock()
		handled[acct.Address.Hex()]++
		mu.Unlock()
		return completeOnce(acct.Index)(ctx, acct, emit)
	})
	store := newMemoryStore(t)
	worker := NewWorker(queue, &staticRoster{accounts: accounts}, runner, NewRecorder(store), WithWorkerCount(2))

	// 队列已关闭，消费完剩余消息后 Start 返回。
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("worker: %v", err)
	}
	for _, acct := range accounts {
		if handled[acct.Address.Hex()] != 1 {
			t.Fatalf("account %s handled %d times", acct.Short(), handled[acct.Address.Hex()])
		}
	}
	runs := runsByAddress(t, store)
	if len(runs) != 3 || runs[accounts[2].Address.Hex()].Transfers != 2 {
		t.Fatalf("unexpected runs %v", runs)
	}
}

func TestWorkerDropsUnknownAccount(t *testing.T) {
	known := newAccounts(t, 2)
	runner := newFakeRunner(completeOnce(0))
	worker := NewWorker(NewMemoryQueue(1), &staticRoster{accounts: known[:1]}, runner, nil)

	if err := worker.Handle(context.Background(), Dispatch{Address: known[1].Address.Hex()}); err != nil {
		t.Fatalf("unknown account should be dropped, got %v", err)
	}
	if runner.startedCount() != 0 {
		t.Fatal("unit must not start for an account outside the roster")
	}
}

func TestWorkerRequeuesInterruptedUnit(t *testing.T) {
	acct := newAccounts(t, 1)[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := newFakeRunner(func(ctx context.Context, _ account.Account, _ func(cycle.Completion)) error {
		return ctx.Err()
	})
	worker := NewWorker(NewMemoryQueue(1), &staticRoster{accounts: []account.Account{acct}}, runner, nil)
	if err := worker.Handle(ctx, Dispatch{Address: acct.Address.Hex()}); err == nil {
		t.Fatal("interrupted unit should report an error so the queue can redeliver")
	}
}
