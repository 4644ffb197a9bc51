package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cycle"
)

func seedRun(id, address string, status Status, finishedAt int64, transfers int) *Run {
	return &Run{
		ID:         id,
		Address:    address,
		Status:     status,
		Transfers:  transfers,
		StartedAt:  finishedAt - 60,
		FinishedAt: finishedAt,
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	addrA := "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	addrB := "0x91f5B89988F094566d7D0545a89fcB4D41269dB4"
	for _, run := range []*Run{
		seedRun("r1", addrA, StatusSucceeded, 100, 7),
		seedRun("r2", addrB, StatusFailed, 200, 0),
		seedRun("r3", addrA, StatusSucceeded, 300, 3),
		seedRun("r4", addrA, StatusCancelled, 400, 0),
	} {
		if err := store.Record(ctx, run); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	runs, err := store.List(ctx, buildListOptions(nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 4 || runs[0].ID != "r4" || runs[3].ID != "r1" {
		t.Fatalf("expected newest first, got %v", ids(runs))
	}

	runs, _ = store.List(ctx, buildListOptions([]ListOption{
		WithAddress("0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"),
		WithStatuses(StatusSucceeded, "bogus"),
		WithSortOrder(SortByFinishedAsc),
	}))
	if got := ids(runs); len(got) != 2 || got[0] != "r1" || got[1] != "r3" {
		t.Fatalf("unexpected filtered runs %v", got)
	}

	runs, _ = store.List(ctx, buildListOptions([]ListOption{WithOffset(1), WithLimit(2)}))
	if got := ids(runs); len(got) != 2 || got[0] != "r3" || got[1] != "r2" {
		t.Fatalf("unexpected page %v", got)
	}

	runs, _ = store.List(ctx, buildListOptions([]ListOption{WithFinishedSince(time.Unix(200, 0)), WithFinishedUntil(time.Unix(300, 0))}))
	if got := ids(runs); len(got) != 2 {
		t.Fatalf("unexpected window %v", got)
	}

	stats, err := store.Stats(ctx, buildListOptions([]ListOption{WithAddress(addrA)}))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Cancelled != 1 || stats.Transfers != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.OldestFinishedAt != 100 || stats.NewestFinishedAt != 400 {
		t.Fatalf("unexpected range %+v", stats)
	}

	if _, err := store.Get(ctx, "missing"); err != ErrRunNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReloadsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "runs.jsonl")
	store, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	acct, _ := account.Generate()
	run := NewRun(cycle.Completion{Account: acct, Cycle: 1, Report: &cycle.Report{
		Transfers: 7,
		Final:     cycle.Stats{Points: 120, WrappedBalance: decimal.RequireFromString("3.5")},
		Outcomes:  []cycle.ActionOutcome{{Action: cycle.ActionNativeClaim, Succeeded: true}},
	}}, time.Unix(1700000000, 0))
	if err := store.Record(context.Background(), run); err != nil {
		t.Fatalf("record: %v", err)
	}

	// 模拟进程崩溃留下的半行。
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"id":"partial`)
	_ = f.Close()

	reopened, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Points != 120 || got.WrappedBalance != "3.5" || got.Transfers != 7 || len(got.Actions) != 1 {
		t.Fatalf("unexpected reloaded run %+v", got)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, run := range runs {
		out[i] = run.ID
	}
	return out
}
