package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faucetpilot.yaml")
	content := `
cycle:
  action_delay: 2s
  transfer_cap: 12
accounts:
  path: roster/accounts.json
history:
  driver: sqlite
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cycle.ActionDelay.Std() != 2*time.Second {
		t.Fatalf("unexpected action delay %s", cfg.Cycle.ActionDelay.Std())
	}
	if cfg.Cycle.TransferDelay.Std() != 5*time.Second {
		t.Fatalf("transfer delay should default to 5s, got %s", cfg.Cycle.TransferDelay.Std())
	}
	if cfg.Cycle.TransferCap != 12 {
		t.Fatalf("unexpected cap %d", cfg.Cycle.TransferCap)
	}
	if cfg.Accounts.Path != filepath.Join(dir, "roster", "accounts.json") {
		t.Fatalf("accounts path not resolved against config dir: %s", cfg.Accounts.Path)
	}
	if cfg.History.Path != filepath.Join(dir, "data", "history.db") {
		t.Fatalf("unexpected sqlite path %s", cfg.History.Path)
	}
	if cfg.Network.ChainID != 10112 {
		t.Fatalf("unexpected chain id %d", cfg.Network.ChainID)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
}

func TestLoadJSONDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faucetpilot.json")
	content := `{"service": {"timeout": "3s"}, "supervisor": {"launch_delay": 1000000000}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Timeout.Std() != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Service.Timeout.Std())
	}
	if cfg.Supervisor.LaunchDelay.Std() != time.Second {
		t.Fatalf("unexpected launch delay %s", cfg.Supervisor.LaunchDelay.Std())
	}
}

func TestLoadOptionalFallsBackWhenMissing(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Accounts.Driver != "file" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestValidateRejectsBadAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := "network:\n  contracts:\n    faucet: not-an-address\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsUnknownWebhookKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	content := "alerts:\n  webhooks:\n    - kind: slack\n      url: https://hooks.example/a\n    - kind: email\n      url: ops@example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown webhook kind")
	}
}
