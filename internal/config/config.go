package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	AWS        AWSConfig        `yaml:"aws"`
	Tail       TailConfig       `yaml:"tail"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Log        LogConfig        `yaml:"log"`
	Tracing    TracingConfig    `yaml:"tracing"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// AWSConfig selects the CloudWatch Logs account and region
type AWSConfig struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`
}

// TailConfig controls catalog discovery and the polling loop
type TailConfig struct {
	Filter          string        `yaml:"filter"`       // Substring a group name must contain, empty = all
	GroupPrefix     string        `yaml:"group_prefix"` // Prefix passed to the listing call
	Lookback        time.Duration `yaml:"lookback"`
	BatchSize       int           `yaml:"batch_size"`
	InterGroupDelay time.Duration `yaml:"inter_group_delay"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`
	InterCycleDelay time.Duration `yaml:"inter_cycle_delay"`
	RateLimitDelay  time.Duration `yaml:"rate_limit_delay"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	ProbePageSize   int           `yaml:"probe_page_size"`
	PageSize        int           `yaml:"page_size"`
	MaxEventPages   int           `yaml:"max_event_pages"`
	NoColor         bool          `yaml:"no_color"`
}

// DedupConfig bounds the memory of the duplicate filter
type DedupConfig struct {
	MaxSize  int           `yaml:"max_size"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// LogConfig configures the diagnostic logger
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// ClickHouseConfig configures the optional event archive
type ClickHouseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	RetryMaxAttempts   int           `yaml:"retry_max_attempts"`
	RetryInitialDelay  time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
	RetryBackoffFactor float64       `yaml:"retry_backoff_factor"`
}

// Load builds configuration from defaults, the optional YAML file named by
// CWTAIL_CONFIG and CWTAIL_* environment variables, in that order
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CWTAIL_CONFIG"))
}

// LoadFile is Load with an explicit YAML path (empty to skip the file)
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AWS.Region = getEnv("CWTAIL_AWS_REGION", getEnv("AWS_REGION", c.AWS.Region))
	c.AWS.Profile = getEnv("CWTAIL_AWS_PROFILE", c.AWS.Profile)
	c.AWS.Endpoint = getEnv("CWTAIL_AWS_ENDPOINT", c.AWS.Endpoint)

	c.Tail.Filter = getEnv("CWTAIL_FILTER", c.Tail.Filter)
	c.Tail.GroupPrefix = getEnv("CWTAIL_GROUP_PREFIX", c.Tail.GroupPrefix)
	c.Tail.Lookback = getEnvDuration("CWTAIL_LOOKBACK", c.Tail.Lookback)
	c.Tail.BatchSize = getEnvInt("CWTAIL_BATCH_SIZE", c.Tail.BatchSize)
	c.Tail.InterGroupDelay = getEnvDuration("CWTAIL_INTER_GROUP_DELAY", c.Tail.InterGroupDelay)
	c.Tail.InterBatchDelay = getEnvDuration("CWTAIL_INTER_BATCH_DELAY", c.Tail.InterBatchDelay)
	c.Tail.InterCycleDelay = getEnvDuration("CWTAIL_INTER_CYCLE_DELAY", c.Tail.InterCycleDelay)
	c.Tail.RateLimitDelay = getEnvDuration("CWTAIL_RATE_LIMIT_DELAY", c.Tail.RateLimitDelay)
	c.Tail.FetchTimeout = getEnvDuration("CWTAIL_FETCH_TIMEOUT", c.Tail.FetchTimeout)
	c.Tail.ProbePageSize = getEnvInt("CWTAIL_PROBE_PAGE_SIZE", c.Tail.ProbePageSize)
	c.Tail.PageSize = getEnvInt("CWTAIL_PAGE_SIZE", c.Tail.PageSize)
	c.Tail.MaxEventPages = getEnvInt("CWTAIL_MAX_EVENT_PAGES", c.Tail.MaxEventPages)
	c.Tail.NoColor = getEnvBool("NO_COLOR", c.Tail.NoColor)

	c.Dedup.MaxSize = getEnvInt("CWTAIL_DEDUP_MAX_SIZE", c.Dedup.MaxSize)
	c.Dedup.Cooldown = getEnvDuration("CWTAIL_DEDUP_COOLDOWN", c.Dedup.Cooldown)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Protocol = getEnv("TRACING_PROTOCOL", c.Tracing.Protocol)

	c.ClickHouse.Enabled = getEnvBool("CLICKHOUSE_ENABLED", c.ClickHouse.Enabled)
	c.ClickHouse.Host = getEnv("CLICKHOUSE_HOST", c.ClickHouse.Host)
	c.ClickHouse.Port = getEnvInt("CLICKHOUSE_PORT", c.ClickHouse.Port)
	c.ClickHouse.Database = getEnv("CLICKHOUSE_DB", c.ClickHouse.Database)
	c.ClickHouse.Username = getEnv("CLICKHOUSE_USER", c.ClickHouse.Username)
	c.ClickHouse.Password = getEnv("CLICKHOUSE_PASSWORD", c.ClickHouse.Password)
	c.ClickHouse.Table = getEnv("CLICKHOUSE_TABLE", c.ClickHouse.Table)
	c.ClickHouse.BatchSize = getEnvInt("CLICKHOUSE_BATCH_SIZE", c.ClickHouse.BatchSize)
	c.ClickHouse.FlushInterval = getEnvDuration("CLICKHOUSE_FLUSH_INTERVAL", c.ClickHouse.FlushInterval)
	c.ClickHouse.RetryMaxAttempts = getEnvInt("CLICKHOUSE_RETRY_MAX_ATTEMPTS", c.ClickHouse.RetryMaxAttempts)
	c.ClickHouse.RetryInitialDelay = getEnvDuration("CLICKHOUSE_RETRY_INITIAL_DELAY", c.ClickHouse.RetryInitialDelay)
	c.ClickHouse.RetryMaxDelay = getEnvDuration("CLICKHOUSE_RETRY_MAX_DELAY", c.ClickHouse.RetryMaxDelay)
	c.ClickHouse.RetryBackoffFactor = getEnvFloat("CLICKHOUSE_RETRY_BACKOFF_FACTOR", c.ClickHouse.RetryBackoffFactor)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("aws region is required (CWTAIL_AWS_REGION)")
	}
	if c.Tail.Lookback <= 0 {
		return fmt.Errorf("CWTAIL_LOOKBACK must be positive")
	}
	if c.Tail.BatchSize < 1 {
		return fmt.Errorf("CWTAIL_BATCH_SIZE must be at least 1")
	}
	if c.Tail.InterGroupDelay < 0 || c.Tail.InterBatchDelay < 0 {
		return fmt.Errorf("pacing delays must not be negative")
	}
	if c.Tail.InterCycleDelay <= 0 {
		return fmt.Errorf("CWTAIL_INTER_CYCLE_DELAY must be positive")
	}
	if c.Tail.RateLimitDelay <= 0 {
		return fmt.Errorf("CWTAIL_RATE_LIMIT_DELAY must be positive")
	}
	if c.Tail.FetchTimeout <= 0 {
		return fmt.Errorf("CWTAIL_FETCH_TIMEOUT must be positive")
	}
	if c.Tail.ProbePageSize < 1 || c.Tail.ProbePageSize > 50 {
		return fmt.Errorf("CWTAIL_PROBE_PAGE_SIZE must be between 1 and 50")
	}
	if c.Tail.PageSize < 1 || c.Tail.PageSize > 50 {
		return fmt.Errorf("CWTAIL_PAGE_SIZE must be between 1 and 50")
	}
	if c.Tail.MaxEventPages < 1 {
		return fmt.Errorf("CWTAIL_MAX_EVENT_PAGES must be at least 1")
	}
	if c.Dedup.MaxSize < 1 {
		return fmt.Errorf("CWTAIL_DEDUP_MAX_SIZE must be at least 1")
	}
	if c.Dedup.Cooldown < 0 {
		return fmt.Errorf("CWTAIL_DEDUP_COOLDOWN must not be negative")
	}
	if c.Tracing.Enabled && c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be 'grpc' or 'http'")
	}
	if c.ClickHouse.Enabled {
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when the archive is enabled")
		}
		if c.ClickHouse.Port <= 0 || c.ClickHouse.Port > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouse.Table == "" {
			return fmt.Errorf("CLICKHOUSE_TABLE is required when the archive is enabled")
		}
		if c.ClickHouse.BatchSize < 1 {
			return fmt.Errorf("CLICKHOUSE_BATCH_SIZE must be at least 1")
		}
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain milliseconds ("30000")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
