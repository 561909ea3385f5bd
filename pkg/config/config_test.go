package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":8095" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if cfg.SessionMaxTurns != 100 {
		t.Errorf("SessionMaxTurns = %d", cfg.SessionMaxTurns)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.ChainOrder != ChainOrderAny {
		t.Errorf("ChainOrder = %q", cfg.ChainOrder)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BASTION_LISTEN_ADDR", ":9999")
	t.Setenv("BASTION_SESSION_TIMEOUT_SECONDS", "900")
	t.Setenv("BASTION_SESSION_MAX_TURNS", "50")
	t.Setenv("BASTION_STORE", "redis")
	t.Setenv("BASTION_LOG_JSON", "true")

	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SessionTimeout != 15*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if cfg.SessionMaxTurns != 50 {
		t.Errorf("SessionMaxTurns = %d", cfg.SessionMaxTurns)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON should be true")
	}
}

func TestEnvInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("BASTION_SESSION_MAX_TURNS", "not-a-number")
	t.Setenv("BASTION_LOG_JSON", "sometimes")

	cfg := NewDefaultConfig()
	if cfg.SessionMaxTurns != 100 {
		t.Errorf("SessionMaxTurns = %d, want default 100", cfg.SessionMaxTurns)
	}
	if cfg.LogJSON {
		t.Error("LogJSON should keep default false")
	}
}

func TestMaxTurnsClamped(t *testing.T) {
	t.Setenv("BASTION_SESSION_MAX_TURNS", "999999")
	cfg := NewDefaultConfig()
	if cfg.SessionMaxTurns != 10000 {
		t.Errorf("SessionMaxTurns = %d, want clamp at 10000", cfg.SessionMaxTurns)
	}

	t.Setenv("BASTION_SESSION_MAX_TURNS", "0")
	cfg = NewDefaultConfig()
	if cfg.SessionMaxTurns != 1 {
		t.Errorf("SessionMaxTurns = %d, want clamp at 1", cfg.SessionMaxTurns)
	}
}

func TestProfiles(t *testing.T) {
	hs, err := Profile("high-security")
	if err != nil {
		t.Fatalf("high-security: %v", err)
	}
	if hs.SessionTimeout != 15*time.Minute || hs.SessionMaxTurns != 50 {
		t.Errorf("high-security = %v/%d", hs.SessionTimeout, hs.SessionMaxTurns)
	}

	hu, err := Profile("high-usability")
	if err != nil {
		t.Fatalf("high-usability: %v", err)
	}
	if hu.SessionTimeout != 2*time.Hour || hu.SessionMaxTurns != 1000 {
		t.Errorf("high-usability = %v/%d", hu.SessionTimeout, hu.SessionMaxTurns)
	}
	if hu.ChainOrder != ChainOrderStrict {
		t.Errorf("high-usability chain order = %q", hu.ChainOrder)
	}

	if _, err := Profile("paranoid"); err == nil {
		t.Error("unknown profile should error")
	}
	if _, err := Profile(""); err != nil {
		t.Errorf("empty profile should mean default: %v", err)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bastion.yaml")
	content := "listen_addr: \":7070\"\nsession_max_turns: 25\nchain_order: strict\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SessionMaxTurns != 25 {
		t.Errorf("SessionMaxTurns = %d", cfg.SessionMaxTurns)
	}
	if cfg.ChainOrder != ChainOrderStrict {
		t.Errorf("ChainOrder = %q", cfg.ChainOrder)
	}
	// Untouched fields keep their defaults.
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overlaid config should validate: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFile(path); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative timeout", func(c *Config) { c.SessionTimeout = -time.Second }, "session_timeout"},
		{"zero turns", func(c *Config) { c.SessionMaxTurns = 0 }, "session_max_turns"},
		{"redis without addr", func(c *Config) { c.StoreBackend = StoreRedis; c.RedisAddr = "" }, "redis_addr"},
		{"postgres without dsn", func(c *Config) { c.StoreBackend = StorePostgres }, "postgres_dsn"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "etcd" }, "store backend"},
		{"unknown chain order", func(c *Config) { c.ChainOrder = "chronological" }, "chain order"},
		{"zero scan limit", func(c *Config) { c.MaxScanBytes = 0 }, "max_scan_bytes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}
