package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, 3, cfg.Trading.Retry.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Feed.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
			errMsg:  "server.addr is required",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Kind = "mongo" },
			wantErr: true,
			errMsg:  "store.kind must be",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
			errMsg:  "store.path required",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Kind = "postgres" },
			wantErr: true,
			errMsg:  "store.dsn required",
		},
		{
			name:   "memory store",
			mutate: func(c *Config) { c.Store = StoreConfig{Kind: "memory"} },
		},
		{
			name:    "zero trading attempts",
			mutate:  func(c *Config) { c.Trading.Retry.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "trading.retry",
		},
		{
			name:    "http feed without url",
			mutate:  func(c *Config) { c.Feed.Kind = "http" },
			wantErr: true,
			errMsg:  "feed.url required",
		},
		{
			name:    "simulator without interval",
			mutate:  func(c *Config) { c.Feed.Interval = 0 },
			wantErr: true,
			errMsg:  "feed.interval must be positive",
		},
		{
			name:    "feed backoff inverted",
			mutate:  func(c *Config) { c.Feed.Retry.InitialBackoff = time.Hour },
			wantErr: true,
			errMsg:  "feed.retry",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: true,
			errMsg:  "kafka brokers and topic required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			errMsg:  "log.level",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.Kind = "memory"
			cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}
			cfg.Journal.OrdersCSV = "orders.csv"
			path := filepath.Join(tmpDir, "test"+tt.ext)

			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			_, err = os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  kind: memory
feed:
  interval: 500ms
  retry:
    max_attempts: 10
    initial_backoff: 1s
    max_backoff: 1m
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, 10, cfg.Feed.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Feed.Retry.MaxBackoff)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Trading.Retry.MaxAttempts)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	cfg, err := Load("", map[string]string{
		"STOCKLEDGER_SERVER_ADDR":        ":9090",
		"STOCKLEDGER_STORE_KIND":         "postgres",
		"STOCKLEDGER_STORE_DSN":          "postgres://localhost/ledger",
		"STOCKLEDGER_FEED_KIND":          "none",
		"STOCKLEDGER_KAFKA_ENABLED":      "true",
		"STOCKLEDGER_KAFKA_BROKERS":      "a:9092,b:9092",
		"STOCKLEDGER_CACHE_TTL":          "30s",
		"STOCKLEDGER_LOG_LEVEL":          "debug",
		"STOCKLEDGER_STORE_BUSY_TIMEOUT": "1s",
		"STOCKLEDGER_JOURNAL_ORDERS_CSV": "/tmp/orders.csv",
		"UNRELATED_VARIABLE_IS_IGNORED":  "x",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Store.Kind)
	assert.Equal(t, "postgres://localhost/ledger", cfg.Store.DSN)
	assert.Equal(t, "none", cfg.Feed.Kind)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, "/tmp/orders.csv", cfg.Journal.OrdersCSV)

	opts := cfg.StoreOptions()
	assert.Equal(t, "postgres", opts.Kind)
	assert.Equal(t, "postgres://localhost/ledger", opts.DSN)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	_, err := Load("", map[string]string{"STOCKLEDGER_STORE_KIND": "mongo"})
	assert.ErrorContains(t, err, "store.kind")

	_, err = Load("", map[string]string{"STOCKLEDGER_CACHE_TTL": "soon"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := LogConfig{Level: "debug", Development: true}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}
