package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/beacon-lab/project-beacon/internal/core/tracking"
)

// Config represents the top-level application config plus resolved rule-loading config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Tracking TrackingConfig `koanf:"tracking"`

	// RuleLoading is populated by Load after parsing rule files.
	RuleLoading RuleLoadingConfig `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RealtimeConfig carries the engine intervals and capacities. Intervals are
// duration strings ("30s", "2m"); they are parsed and validated on startup.
type RealtimeConfig struct {
	FlushInterval   string `koanf:"flush_interval"`
	SweepInterval   string `koanf:"sweep_interval"`
	RateWindow      string `koanf:"rate_window"`
	PresenceTTL     string `koanf:"presence_ttl"`
	RingCapacity    int    `koanf:"ring_capacity"`
	SubscriberQueue int    `koanf:"subscriber_queue"`
}

type TrackingConfig struct {
	ConfigDir    string `koanf:"config_dir"`
	RequireRules bool   `koanf:"require_rules"`
}

type RuleLoadingConfig struct {
	ConfigDir string
	Rules     []tracking.Rule
}

// durationField parses a named duration setting and requires it to be positive.
func durationField(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return d, nil
}

func (c RealtimeConfig) FlushIntervalDuration() (time.Duration, error) {
	return durationField("realtime.flush_interval", c.FlushInterval)
}

func (c RealtimeConfig) SweepIntervalDuration() (time.Duration, error) {
	return durationField("realtime.sweep_interval", c.SweepInterval)
}

func (c RealtimeConfig) RateWindowDuration() (time.Duration, error) {
	return durationField("realtime.rate_window", c.RateWindow)
}

func (c RealtimeConfig) PresenceTTLDuration() (time.Duration, error) {
	return durationField("realtime.presence_ttl", c.PresenceTTL)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if _, err := c.Realtime.FlushIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Realtime.SweepIntervalDuration(); err != nil {
		return err
	}
	window, err := c.Realtime.RateWindowDuration()
	if err != nil {
		return err
	}
	// Rate windows bucket on whole unix seconds.
	if window < time.Second {
		return fmt.Errorf("realtime.rate_window must be at least 1s (got %q)", c.Realtime.RateWindow)
	}
	if _, err := c.Realtime.PresenceTTLDuration(); err != nil {
		return err
	}
	if c.Realtime.RingCapacity <= 0 {
		return fmt.Errorf("realtime.ring_capacity must be > 0")
	}
	if c.Realtime.SubscriberQueue <= 0 {
		return fmt.Errorf("realtime.subscriber_queue must be > 0")
	}

	if strings.TrimSpace(c.Tracking.ConfigDir) == "" {
		return fmt.Errorf("tracking.config_dir is required")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates tracking rules.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.max_body_size_mb":   1,
		"server.mode":               "release",
		"database.type":             "postgres",
		"database.dsn":              "",
		"database.max_open_conns":   25,
		"database.max_idle_conns":   25,
		"database.auto_migrate":     true,
		"realtime.flush_interval":   "30s",
		"realtime.sweep_interval":   "1m",
		"realtime.rate_window":      "1m",
		"realtime.presence_ttl":     "5m",
		"realtime.ring_capacity":    1000,
		"realtime.subscriber_queue": 64,
		"tracking.config_dir":       "./config/tracking",
		"tracking.require_rules":    false,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("BEACON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BEACON_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := tracking.NewFileSystemRepository(cfg.Tracking.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracking rules: %w", err)
	}
	rules := repo.GetRules()
	if cfg.Tracking.RequireRules && len(rules) == 0 {
		return nil, fmt.Errorf("no tracking rules found in %q", cfg.Tracking.ConfigDir)
	}

	cfg.RuleLoading = RuleLoadingConfig{
		ConfigDir: cfg.Tracking.ConfigDir,
		Rules:     rules,
	}

	return &cfg, nil
}
