package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %q, got %q", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Delivery.GraceDelay != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
storage:
  driver: pebble
  path: /tmp/cartchat-data
delivery:
  mode: timer
  grace_delay: 2s
bus:
  backend: kafka
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CARTCHAT_SERVER_ADDR", ":9100")
	t.Setenv("CARTCHAT_BUS_BROKERS", "k1:9092,k2:9092")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":9100" {
		t.Fatalf("env must win over file, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "pebble" || cfg.Storage.Path != "/tmp/cartchat-data" {
		t.Fatalf("storage not read from file: %+v", cfg.Storage)
	}
	if cfg.Delivery.Mode != "timer" || cfg.Delivery.GraceDelay != 2*time.Second {
		t.Fatalf("delivery not read from file: %+v", cfg.Delivery)
	}
	if strings.Join(cfg.Bus.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("brokers not read from env: %v", cfg.Bus.Brokers)
	}
	if cfg.JWT.Issuer != "cartchat" {
		t.Fatalf("missing keys must keep defaults, got issuer %q", cfg.JWT.Issuer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"unknown mode", func(c *Config) { c.Delivery.Mode = "eventually" }, "delivery.mode"},
		{"empty secret", func(c *Config) { c.JWT.Secret = "" }, "jwt.secret"},
		{"kafka without topic", func(c *Config) { c.Bus.Backend = "kafka"; c.Bus.Topic = "" }, "bus.brokers"},
		{"unknown presence", func(c *Config) { c.Presence.Backend = "etcd" }, "presence.backend"},
		{"negative rate", func(c *Config) { c.Server.WSRateLimit = -1 }, "ws_rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Server: ServerConfig{Addr: ":7000"}, Storage: StorageConfig{Path: "x.db"}})

	if cfg.Server.Addr != ":7000" || cfg.Storage.Path != "x.db" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("zero overrides must keep values: %+v", cfg)
	}
}
