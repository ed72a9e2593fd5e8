package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verita.yaml")

	t.Setenv("WEBHOOK_TARGET", "https://hooks.example.com/verita")

	data := `
listen_addr: ":8080"
policy_path: "./policies/verita.yaml"
db:
  driver: sqlite
  dsn: "./verita.db"
webhook:
  enabled: true
  target: "${WEBHOOK_TARGET}"
engine:
  workers: 4
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.Target != "https://hooks.example.com/verita" {
		t.Fatalf("expected expanded webhook target, got %q", cfg.Webhook.Target)
	}
	if cfg.DB.Driver != "sqlite" || cfg.Engine.Workers != 4 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidateMissingFields(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateWebhookRequiresTarget(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", Webhook: WebhookConfig{Enabled: true}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateDBRequiresDSN(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", DB: DBConfig{Driver: "sqlite"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
	cfg.DB = DBConfig{Driver: "tape"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	cfg.DB = DBConfig{Driver: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver needs no dsn: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected error")
	}
}
