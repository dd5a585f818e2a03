package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/stockledger/pkg/retry"
	"github.com/rustyeddy/stockledger/store"
)

// EnvPrefix prefixes every environment override, e.g. STOCKLEDGER_STORE_KIND.
const EnvPrefix = "STOCKLEDGER_"

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Store   StoreConfig   `json:"store" yaml:"store" envPrefix:"STORE_"`
	Trading TradingConfig `json:"trading" yaml:"trading" envPrefix:"TRADING_"`
	Feed    FeedConfig    `json:"feed" yaml:"feed" envPrefix:"FEED_"`
	Kafka   KafkaConfig   `json:"kafka" yaml:"kafka" envPrefix:"KAFKA_"`
	Cache   CacheConfig   `json:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Journal JournalConfig `json:"journal" yaml:"journal" envPrefix:"JOURNAL_"`
	Log     LogConfig     `json:"log" yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig contains HTTP listener parameters
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr" env:"ADDR"`
	CORSOrigin   string        `json:"cors_origin" yaml:"cors_origin" env:"CORS_ORIGIN"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// StoreConfig selects the ledger store
type StoreConfig struct {
	Kind        string        `json:"kind" yaml:"kind" env:"KIND"` // "memory", "sqlite" or "postgres"
	Path        string        `json:"path,omitempty" yaml:"path,omitempty" env:"PATH"`
	DSN         string        `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"DSN"`
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
	MaxConns    int32         `json:"max_conns" yaml:"max_conns" env:"MAX_CONNS"`
	SeedStocks  bool          `json:"seed_stocks" yaml:"seed_stocks" env:"SEED_STOCKS"`
}

// TradingConfig bounds conflict retries of the executor
type TradingConfig struct {
	Retry retry.Config `json:"retry" yaml:"retry"`
}

// FeedConfig selects the reference price feed
type FeedConfig struct {
	Kind     string        `json:"kind" yaml:"kind" env:"KIND"` // "simulator", "http" or "none"
	URL      string        `json:"url,omitempty" yaml:"url,omitempty" env:"URL"`
	Token    string        `json:"token,omitempty" yaml:"token,omitempty" env:"TOKEN"`
	Interval time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
	Seed     int64         `json:"seed" yaml:"seed" env:"SEED"`
	Retry    retry.Config  `json:"retry" yaml:"retry"`
}

// KafkaConfig enables publishing executed orders
type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Brokers []string `json:"brokers,omitempty" yaml:"brokers,omitempty" env:"BROKERS" envSeparator:","`
	Topic   string   `json:"topic,omitempty" yaml:"topic,omitempty" env:"TOPIC"`
}

// CacheConfig sizes the stock directory cache
type CacheConfig struct {
	MaxCost int64         `json:"max_cost" yaml:"max_cost" env:"MAX_COST"`
	TTL     time.Duration `json:"ttl" yaml:"ttl" env:"TTL"`
}

// JournalConfig enables the append-only order journal
type JournalConfig struct {
	OrdersCSV string `json:"orders_csv,omitempty" yaml:"orders_csv,omitempty" env:"ORDERS_CSV"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level       string `json:"level" yaml:"level" env:"LEVEL"`
	Development bool   `json:"development" yaml:"development" env:"DEVELOPMENT"`
}

// LoadFromFile loads configuration from a file (JSON or YAML). Fields the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load reads path (defaults when empty), applies environment overrides from
// environ (the process environment when nil) and validates the result.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOCKLEDGER_* variables.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Store.Kind {
	case store.KindMemory:
	case store.KindSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for sqlite store")
		}
	case store.KindPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for postgres store")
		}
	default:
		return fmt.Errorf("store.kind must be 'memory', 'sqlite' or 'postgres'")
	}
	if c.Store.BusyTimeout < 0 {
		return fmt.Errorf("store.busy_timeout must not be negative")
	}

	if err := c.Trading.Retry.Validate(); err != nil {
		return fmt.Errorf("trading.retry: %w", err)
	}

	switch c.Feed.Kind {
	case "none":
	case "simulator":
		if c.Feed.Interval <= 0 {
			return fmt.Errorf("feed.interval must be positive")
		}
	case "http":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for http feed")
		}
	default:
		return fmt.Errorf("feed.kind must be 'simulator', 'http' or 'none'")
	}
	if err := c.Feed.Retry.Validate(); err != nil {
		return fmt.Errorf("feed.retry: %w", err)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic required when kafka is enabled")
	}

	if c.Cache.MaxCost <= 0 {
		return fmt.Errorf("cache.max_cost must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Kind:        c.Store.Kind,
		Path:        c.Store.Path,
		DSN:         c.Store.DSN,
		BusyTimeout: c.Store.BusyTimeout,
		MaxConns:    c.Store.MaxConns,
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			CORSOrigin:   "*",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Kind:        store.KindSQLite,
			Path:        "./stockledger.db",
			BusyTimeout: 5 * time.Second,
			MaxConns:    10,
			SeedStocks:  true,
		},
		Trading: TradingConfig{
			Retry: retry.DefaultConfig(),
		},
		Feed: FeedConfig{
			Kind:     "simulator",
			Interval: 3 * time.Second,
			Seed:     1,
			Retry: retry.Config{
				MaxAttempts:    5,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     30 * time.Second,
				Multiplier:     2.0,
				Jitter:         true,
			},
		},
		Kafka: KafkaConfig{
			Topic: "orders.executed",
		},
		Cache: CacheConfig{
			MaxCost: 1 << 20,
			TTL:     time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
