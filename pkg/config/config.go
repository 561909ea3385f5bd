// Package config holds gateway and engine settings. Everything can be set
// via environment variables (BASTION_* prefix), optionally overlaid by a
// YAML file, or built programmatically from one of the named profiles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects where session records live.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"   // single node, default
	StoreRedis    StoreBackend = "redis"    // shared state across nodes
	StorePostgres StoreBackend = "postgres" // durable archive
)

// ChainOrderMode selects the attack-chain stage-order policy.
type ChainOrderMode string

const (
	ChainOrderAny    ChainOrderMode = "any"    // stages may match in any order (default)
	ChainOrderStrict ChainOrderMode = "strict" // stages must match in sequence
)

// Config holds all settings for the bastion gateway and CLI.
type Config struct {
	// === Server ===
	ListenAddr string `yaml:"listen_addr"` // HTTP bind address (default ":8095")

	// === Logging ===
	LogLevel string `yaml:"log_level"` // trace|debug|info|warn|error (default "info")
	LogJSON  bool   `yaml:"log_json"`  // JSON logs instead of console output

	// === Detection ===
	SeedDir    string         `yaml:"seed_dir"`    // optional YAML signature seed directory
	ChainOrder ChainOrderMode `yaml:"chain_order"` // attack-chain stage ordering

	// === Sessions ===
	SessionTimeout  time.Duration `yaml:"session_timeout"`   // idle timeout (default 30m)
	SessionMaxTurns int           `yaml:"session_max_turns"` // turn capacity (default 100)

	// === Session store ===
	StoreBackend  StoreBackend  `yaml:"store_backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	PostgresDSN   string        `yaml:"postgres_dsn"`

	// === Limits ===
	MaxScanBytes int `yaml:"max_scan_bytes"` // largest accepted scan payload
}

// NewDefaultConfig builds a Config from environment variables with sensible
// defaults for a single-node deployment.
func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr: GetEnv("BASTION_LISTEN_ADDR", ":8095"),

		LogLevel: GetEnv("BASTION_LOG_LEVEL", "info"),
		LogJSON:  GetEnvBool("BASTION_LOG_JSON", false),

		SeedDir:    GetEnv("BASTION_SEED_DIR", ""),
		ChainOrder: ChainOrderMode(GetEnv("BASTION_CHAIN_ORDER", string(ChainOrderAny))),

		SessionTimeout:  time.Duration(GetEnvInt("BASTION_SESSION_TIMEOUT_SECONDS", 1800)) * time.Second,
		SessionMaxTurns: clampInt(GetEnvInt("BASTION_SESSION_MAX_TURNS", 100), 1, 10000),

		StoreBackend:  StoreBackend(GetEnv("BASTION_STORE", string(StoreMemory))),
		RedisAddr:     GetEnv("BASTION_REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("BASTION_REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("BASTION_REDIS_DB", 0),
		RedisTTL:      time.Duration(GetEnvInt("BASTION_REDIS_TTL_SECONDS", 3600)) * time.Second,
		PostgresDSN:   GetEnv("BASTION_POSTGRES_DSN", ""),

		MaxScanBytes: GetEnvInt("BASTION_MAX_SCAN_BYTES", 1<<20),
	}
}

// NewHighSecurityConfig tightens session limits so slow attacks cannot age
// out of detection.
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SessionTimeout = 15 * time.Minute
	cfg.SessionMaxTurns = 50
	cfg.LogLevel = "debug"
	return cfg
}

// NewHighUsabilityConfig relaxes session limits for long-running assistant
// conversations and requires ordered chain stages to cut false positives.
func NewHighUsabilityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SessionTimeout = 2 * time.Hour
	cfg.SessionMaxTurns = 1000
	cfg.ChainOrder = ChainOrderStrict
	return cfg
}

// Profile returns the named configuration profile.
func Profile(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return NewDefaultConfig(), nil
	case "high-security":
		return NewHighSecurityConfig(), nil
	case "high-usability":
		return NewHighUsabilityConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
}

// LoadFile overlays YAML settings from path onto c. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks settings for consistency.
func (c *Config) Validate() error {
	var problems []string

	if c.SessionTimeout <= 0 {
		problems = append(problems, "session_timeout must be positive")
	}
	if c.SessionMaxTurns <= 0 {
		problems = append(problems, "session_max_turns must be positive")
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "redis store requires redis_addr")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			problems = append(problems, "postgres store requires postgres_dsn")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store backend %q", c.StoreBackend))
	}
	switch c.ChainOrder {
	case ChainOrderAny, ChainOrderStrict:
	default:
		problems = append(problems, fmt.Sprintf("unknown chain order %q", c.ChainOrder))
	}
	if c.MaxScanBytes <= 0 {
		problems = append(problems, "max_scan_bytes must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate panics on an invalid configuration. For wiring paths where
// a bad config is a programming error, not user input.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		panic(err)
	}
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
