package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers understood by the example host.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	// OpenTelemetry (traces)
	OTELExporterOTLPEndpoint string
	OTELServiceName          string

	StoreDriver string
	DatabaseURL string
	RedisAddr   string

	WorkerCount      int
	PollInterval     time.Duration
	ExecutionTimeout time.Duration
	ShutdownTimeout  time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "banyan-worker"),

		StoreDriver: getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL: getEnv("DATABASE_URL", "banyan-tasks.db"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		WorkerCount:      getEnvAsInt("WORKER_COUNT", 4),
		PollInterval:     getEnvAsDuration("POLL_INTERVAL", time.Second),
		ExecutionTimeout: getEnvAsDuration("EXECUTION_TIMEOUT", 30*time.Second),
		ShutdownTimeout:  getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		BackoffBase:      getEnvAsDuration("BACKOFF_BASE", time.Second),
		BackoffMax:       getEnvAsDuration("BACKOFF_MAX", time.Hour),
	}
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of sqlite, postgres, redis; got %q", c.StoreDriver)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("EXECUTION_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("BACKOFF_BASE must be > 0 and <= BACKOFF_MAX")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
