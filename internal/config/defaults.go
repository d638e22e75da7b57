package config

import "time"

const (
	defaultRegion          = "sa-east-1"
	defaultLookback        = 30 * time.Second
	defaultBatchSize       = 5
	defaultInterGroupDelay = 50 * time.Millisecond
	defaultInterBatchDelay = 500 * time.Millisecond
	defaultInterCycleDelay = 10 * time.Second
	defaultRateLimitDelay  = time.Second
	defaultFetchTimeout    = 10 * time.Second
	defaultProbePageSize   = 1
	defaultPageSize        = 50
	defaultMaxEventPages   = 1
	defaultDedupMaxSize    = 100000
	defaultDedupCooldown   = 20 * time.Second
	defaultLogLevel        = "info"
	defaultTracingProtocol = "grpc"
	defaultClickHousePort  = 9000
	defaultClickHouseDB    = "logs"
	defaultClickHouseTable = "logs.cloudwatch_events"
)

// Default returns a Config populated with defaults
func Default() *Config {
	return &Config{
		AWS: AWSConfig{
			Region: defaultRegion,
		},
		Tail: TailConfig{
			Lookback:        defaultLookback,
			BatchSize:       defaultBatchSize,
			InterGroupDelay: defaultInterGroupDelay,
			InterBatchDelay: defaultInterBatchDelay,
			InterCycleDelay: defaultInterCycleDelay,
			RateLimitDelay:  defaultRateLimitDelay,
			FetchTimeout:    defaultFetchTimeout,
			ProbePageSize:   defaultProbePageSize,
			PageSize:        defaultPageSize,
			MaxEventPages:   defaultMaxEventPages,
		},
		Dedup: DedupConfig{
			MaxSize:  defaultDedupMaxSize,
			Cooldown: defaultDedupCooldown,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
		Tracing: TracingConfig{
			Protocol: defaultTracingProtocol,
		},
		ClickHouse: ClickHouseConfig{
			Host:               "localhost",
			Port:               defaultClickHousePort,
			Database:           defaultClickHouseDB,
			Table:              defaultClickHouseTable,
			BatchSize:          500,
			FlushInterval:      5 * time.Second,
			RetryMaxAttempts:   3,
			RetryInitialDelay:  100 * time.Millisecond,
			RetryMaxDelay:      5 * time.Second,
			RetryBackoffFactor: 2.0,
		},
	}
}
