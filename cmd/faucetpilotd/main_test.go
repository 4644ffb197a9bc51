package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/config"
)

func TestWalletCreateAppendsToRoster(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "faucetpilot.yaml")
	if err := os.WriteFile(cfgPath, []byte("accounts:\n  driver: file\n  path: wallets.json\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"wallet", "create", "-n", "2", "--config", cfgPath})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("wallet create: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1 0x") {
		t.Fatalf("unexpected output %q", out.String())
	}

	store, err := account.NewFileStore(filepath.Join(dir, "wallets.json"))
	if err != nil {
		t.Fatalf("open roster: %v", err)
	}
	accounts, err := store.List(context.Background())
	if err != nil || len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d (%v)", len(accounts), err)
	}
}

func TestCycleParamsFromDefaults(t *testing.T) {
	cfg := config.Default()
	params, err := cycleParams(cfg, 0)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.ChainID.Int64() != 10112 || params.TransferCap != 10 || params.TransferGasLimit != 300000 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.TransferThreshold.String() != "1" || params.CycleLimit != 0 {
		t.Fatalf("unexpected threshold/limit %s %d", params.TransferThreshold, params.CycleLimit)
	}
	if once, _ := cycleParams(cfg, limitFor(true)); once.CycleLimit != 1 {
		t.Fatalf("--once should limit to one cycle, got %d", once.CycleLimit)
	}

	cfg.Cycle.TransferAmount = "one"
	if _, err := cycleParams(cfg, 0); err == nil {
		t.Fatal("invalid amount should be rejected")
	}
}

func TestDispatchAndWorkerRejectInProcessQueue(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "faucetpilot.yaml")
	if err := os.WriteFile(cfgPath, []byte("accounts:\n  path: wallets.json\nqueue:\n  driver: memory\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	for _, sub := range []string{"dispatch", "worker"} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{sub, "--config", cfgPath})
		err := root.ExecuteContext(context.Background())
		if err == nil || !strings.Contains(err.Error(), "queue.driver") {
			t.Fatalf("%s: expected queue driver error, got %v", sub, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "wallets.json")); !os.IsNotExist(err) {
		t.Fatalf("roster should not be touched before the queue check, stat err %v", err)
	}
}

func TestRequireSharedQueue(t *testing.T) {
	if err := requireSharedQueue(config.QueueConfig{}); err == nil {
		t.Fatal("empty driver should be rejected")
	}
	for _, driver := range []string{"redis", "rabbitmq"} {
		if err := requireSharedQueue(config.QueueConfig{Driver: driver}); err != nil {
			t.Fatalf("%s should be accepted: %v", driver, err)
		}
	}
}
