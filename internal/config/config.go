// Package config loads the gateway configuration file. Values may reference
// environment variables with ${VAR}; they are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	DB         DBConfig         `yaml:"db"`
	PolicyPath string           `yaml:"policy_path"`
	APIToken   string           `yaml:"api_token"`
	SigningKey SigningKeyConfig `yaml:"signing_key"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Engine     EngineConfig     `yaml:"engine"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type WebhookConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Target       string `yaml:"target"`
	PollInterval string `yaml:"poll_interval"`
}

type EngineConfig struct {
	Workers int `yaml:"workers"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver: %s", c.DB.Driver)
	}

	if c.Webhook.Enabled && c.Webhook.Target == "" {
		return fmt.Errorf("webhook.target is required when webhook.enabled=true")
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}

	return nil
}
