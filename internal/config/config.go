package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultConfigFile is read when present and no --config is given
const DefaultConfigFile = "config.json"

// EnvPrefix prefixes every environment override, e.g. PROXYWEAVER_ROUNDS
const EnvPrefix = "PROXYWEAVER"

// Config holds all runtime configuration parameters
type Config struct {
	DomainCSV        string `mapstructure:"domain_csv"`
	ProxyCSV         string `mapstructure:"proxy_csv"`
	Rounds           int    `mapstructure:"rounds"`
	MaxParallel      int    `mapstructure:"max_parallel"`
	MinDelayMs       int    `mapstructure:"min_delay_ms"`
	MaxDelayMs       int    `mapstructure:"max_delay_ms"`
	FlushIntervalSec int    `mapstructure:"flush_interval_sec"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	UserAgent        string `mapstructure:"user_agent"`
	SeedURL          string `mapstructure:"seed_url"`
	Backend          string `mapstructure:"backend"`
	DBPath           string `mapstructure:"db_path"`
	MetricsPath      string `mapstructure:"metrics_path"`
	MetricsAddr      string `mapstructure:"metrics_addr"`
	ProbeURL         string `mapstructure:"probe_url"`
	ProbeTimeoutMs   int    `mapstructure:"probe_timeout_ms"`
	ProbeParallel    int    `mapstructure:"probe_parallel"`
}

// defaults mirrors every key with its default value
var defaults = map[string]any{
	"domain_csv":         "domains.csv",
	"proxy_csv":          "proxies.csv",
	"rounds":             5,
	"max_parallel":       80,
	"min_delay_ms":       100,
	"max_delay_ms":       3000,
	"flush_interval_sec": 60,
	"request_timeout_ms": 8000,
	"user_agent":         "PCrawler/Percent",
	"seed_url":           "https://news.ycombinator.com",
	"backend":            "csv",
	"db_path":            "crawler.db",
	"metrics_path":       "metrics.json",
	"metrics_addr":       "",
	"probe_url":          "http://www.google.com",
	"probe_timeout_ms":   5000,
	"probe_parallel":     20,
}

// Default returns a configuration holding only default values
func Default() *Config {
	cfg := &Config{
		Rounds:           defaults["rounds"].(int),
		MaxParallel:      defaults["max_parallel"].(int),
		MinDelayMs:       defaults["min_delay_ms"].(int),
		MaxDelayMs:       defaults["max_delay_ms"].(int),
		FlushIntervalSec: defaults["flush_interval_sec"].(int),
		RequestTimeoutMs: defaults["request_timeout_ms"].(int),
		ProbeTimeoutMs:   defaults["probe_timeout_ms"].(int),
		ProbeParallel:    defaults["probe_parallel"].(int),
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads and validates configuration from an optional JSON file,
// PROXYWEAVER_* environment variables and command-line flags, in increasing
// order of precedence. An empty path falls back to config.json in the
// working directory when it exists. Flags are matched to keys by replacing
// dashes with underscores (--max-parallel sets max_parallel).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills fields explicitly emptied by the config file
func applyDefaults(cfg *Config) {
	if cfg.DomainCSV == "" {
		cfg.DomainCSV = defaults["domain_csv"].(string)
	}
	if cfg.ProxyCSV == "" {
		cfg.ProxyCSV = defaults["proxy_csv"].(string)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults["user_agent"].(string)
	}
	if cfg.SeedURL == "" {
		cfg.SeedURL = defaults["seed_url"].(string)
	}
	if cfg.Backend == "" {
		cfg.Backend = defaults["backend"].(string)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaults["db_path"].(string)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaults["metrics_path"].(string)
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = defaults["probe_url"].(string)
	}
}

// validate checks that values are sensible
func validate(cfg *Config) error {
	if cfg.Rounds < 1 {
		return fmt.Errorf("rounds must be >= 1")
	}
	if cfg.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1")
	}
	if cfg.MinDelayMs < 0 {
		return fmt.Errorf("min_delay_ms must be >= 0")
	}
	if cfg.MaxDelayMs < cfg.MinDelayMs {
		return fmt.Errorf("max_delay_ms must be >= min_delay_ms")
	}
	if cfg.FlushIntervalSec < 1 {
		return fmt.Errorf("flush_interval_sec must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.ProbeTimeoutMs < 1 {
		return fmt.Errorf("probe_timeout_ms must be >= 1")
	}
	if cfg.ProbeParallel < 1 {
		return fmt.Errorf("probe_parallel must be >= 1")
	}
	switch cfg.Backend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("backend must be csv or sqlite, got %q", cfg.Backend)
	}
	return nil
}

// RequestTimeout returns the per-request fetch timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// FlushInterval returns the periodic flush interval
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSec) * time.Second
}

// ProbeTimeout returns the per-probe timeout of the proxy checker
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}
