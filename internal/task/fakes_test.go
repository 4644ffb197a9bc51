package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
)

type unitFunc func(ctx context.Context, acct account.Account, emit func(cycle.Completion)) error

type fakeRunner struct {
	mu       sync.Mutex
	started  []account.Account
	units    map[string]unitFunc
	fallback unitFunc
}

func newFakeRunner(fallback unitFunc) *fakeRunner {
	return &fakeRunner{units: make(map[string]unitFunc), fallback: fallback}
}

func (r *fakeRunner) on(acct account.Account, fn unitFunc) {
	r.units[acct.Address.Hex()] = fn
}

func (r *fakeRunner) Run(ctx context.Context, acct account.Account, emit func(cycle.Completion)) error {
	r.mu.Lock()
	r.started = append(r.started, acct)
	fn, ok := r.units[acct.Address.Hex()]
	r.mu.Unlock()
	if !ok {
		fn = r.fallback
	}
	return fn(ctx, acct, emit)
}

func (r *fakeRunner) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func completeOnce(transfers int) unitFunc {
	return func(_ context.Context, acct account.Account, emit func(cycle.Completion)) error {
		emit(cycle.Completion{Account: acct, Cycle: 1, Report: &cycle.Report{
			Account:    acct.Address,
			Transfers:  transfers,
			Outcomes:   []cycle.ActionOutcome{{Action: cycle.ActionTransfer, Succeeded: true}},
			StartedAt:  time.Unix(1700000000, 0),
			FinishedAt: time.Unix(1700000100, 0),
		}})
		return nil
	}
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newAccounts(t *testing.T, n int) []account.Account {
	t.Helper()
	accounts := make([]account.Account, n)
	for i := range accounts {
		acct, err := account.Generate()
		if err != nil {
			t.Fatalf("generate account: %v", err)
		}
		acct.Index = i
		accounts[i] = acct
	}
	return accounts
}

func newMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore("")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	return store
}

func runsByAddress(t *testing.T, store RunStore) map[string]*Run {
	t.Helper()
	runs, err := store.List(context.Background(), ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	byAddr := make(map[string]*Run, len(runs))
	for _, run := range runs {
		byAddr[run.Address] = run
	}
	return byAddr
}

func actionTransfer() cycle.ActionOutcome {
	return cycle.ActionOutcome{Action: cycle.ActionTransfer, Succeeded: true}
}
