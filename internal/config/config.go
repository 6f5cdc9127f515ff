package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	HTTPAddr             string `yaml:"http_addr"                   json:"-"`
	LogLevel             string `yaml:"log_level"                   json:"-"`
	DBPath               string `yaml:"db_path"                     json:"-"`
	HistoryRetentionDays *int   `yaml:"history_retention_days"      json:"history_retention_days"`
	PurgeSchedule        string `yaml:"purge_schedule"              json:"purge_schedule"`
	PollInterval         string `yaml:"poll_interval"               json:"poll_interval"`
	ReadLimit            int64  `yaml:"read_limit_bytes_per_second" json:"read_limit_bytes_per_second"`
	Uppercase            bool   `yaml:"uppercase"                   json:"uppercase"`
	AutoHash             *bool  `yaml:"auto_hash"                   json:"auto_hash"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8256"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HistoryRetentionDays == nil {
		days := 30
		c.HistoryRetentionDays = &days
	}
	if c.PurgeSchedule == "" {
		c.PurgeSchedule = "0 3 * * *"
	}
	if c.PollInterval == "" {
		c.PollInterval = "100ms"
	}
	if c.AutoHash == nil {
		on := true
		c.AutoHash = &on
	}
}

// Default returns the configuration used when no file is present. History
// is stored next to the working directory.
func Default() *Config {
	cfg := Config{DBPath: "hash256.db"}
	cfg.applyDefaults()
	return &cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.PollDuration(); err != nil {
		return err
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("read_limit_bytes_per_second must be >= 0, got %d", c.ReadLimit)
	}
	if c.RetentionDays() < 0 {
		return fmt.Errorf("history_retention_days must be >= 0, got %d", c.RetentionDays())
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// PollDuration parses PollInterval.
func (c *Config) PollDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("parse poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive, got %s", d)
	}
	return d, nil
}

// RetentionDays is how long history is kept. 0 keeps it forever.
func (c *Config) RetentionDays() int {
	if c.HistoryRetentionDays == nil {
		return 0
	}
	return *c.HistoryRetentionDays
}

// HistoryEnabled reports whether runs are persisted.
func (c *Config) HistoryEnabled() bool {
	return c.DBPath != ""
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns Default so the binary runs
// without any setup. An explicit empty db_path in the file disables history.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
