// Package config loads grid configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Redis     RedisConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Grid      GridConfig
	Egress    EgressConfig
	Jobs      JobsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis configuration for the snapshot store and
// job notifier.
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds scheduler tuning.
type SchedulerConfig struct {
	// RetryBackoff delays redispatch of a retried job. Zero means a
	// retried job is immediately eligible again.
	RetryBackoff time.Duration

	// WatchdogInterval is how often stuck scans are reaped.
	WatchdogInterval time.Duration

	// StuckScanThreshold is how long a job may stay scanning before
	// the watchdog fails it on the node's behalf.
	StuckScanThreshold time.Duration

	// CompactionInterval is how often terminal jobs are archived away.
	CompactionInterval time.Duration

	// TerminalRetention is how long terminal jobs stay inspectable
	// before compaction removes them.
	TerminalRetention time.Duration
}

// GridConfig holds orchestration settings.
type GridConfig struct {
	// Nodes is the number of worker nodes registered at startup.
	Nodes int

	// RescanCron optionally re-enqueues the rescan domain list on a
	// cron schedule. Empty disables it.
	RescanCron string

	// RescanPriority is the priority for scheduled rescans.
	RescanPriority int
}

// EgressConfig holds egress pool settings.
type EgressConfig struct {
	// SeedFile is an optional YAML file of identities loaded at startup.
	SeedFile string

	// FingerprintCatalog is an optional YAML catalog override.
	FingerprintCatalog string

	// PacePerSecond rate-limits requests per egress address. Zero
	// disables pacing.
	PacePerSecond float64

	// PaceBurst is the pacing burst size.
	PaceBurst int
}

// JobsConfig holds the asynq results pipeline settings.
type JobsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "scan-grid"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scheduler: SchedulerConfig{
			RetryBackoff:       getEnvDuration("SCHEDULER_RETRY_BACKOFF", 0),
			WatchdogInterval:   getEnvDuration("SCHEDULER_WATCHDOG_INTERVAL", time.Minute),
			StuckScanThreshold: getEnvDuration("SCHEDULER_STUCK_THRESHOLD", 30*time.Minute),
			CompactionInterval: getEnvDuration("SCHEDULER_COMPACTION_INTERVAL", 5*time.Minute),
			TerminalRetention:  getEnvDuration("SCHEDULER_TERMINAL_RETENTION", time.Hour),
		},
		Grid: GridConfig{
			Nodes:          getEnvInt("GRID_NODES", 4),
			RescanCron:     getEnv("GRID_RESCAN_CRON", ""),
			RescanPriority: getEnvInt("GRID_RESCAN_PRIORITY", 30),
		},
		Egress: EgressConfig{
			SeedFile:           getEnv("EGRESS_SEED_FILE", ""),
			FingerprintCatalog: getEnv("FINGERPRINT_CATALOG_FILE", ""),
			PacePerSecond:      getEnvFloat("EGRESS_PACE_PER_SECOND", 0),
			PaceBurst:          getEnvInt("EGRESS_PACE_BURST", 1),
		},
		Jobs: JobsConfig{
			Enabled:       getEnvBool("JOBS_ENABLED", false),
			RedisAddr:     getEnv("JOBS_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("JOBS_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("JOBS_REDIS_DB", 1),
			Queue:         getEnv("JOBS_QUEUE", "scan-results"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Grid.Nodes <= 0 {
		return fmt.Errorf("grid must have at least one node, got %d", c.Grid.Nodes)
	}
	if c.Grid.RescanPriority < 0 || c.Grid.RescanPriority > 100 {
		return fmt.Errorf("rescan priority must be in 0-100, got %d", c.Grid.RescanPriority)
	}
	if c.Scheduler.StuckScanThreshold <= 0 {
		return fmt.Errorf("stuck scan threshold must be positive")
	}
	return nil
}

// IsProduction returns true when running in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Addr returns the host:port for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the host:port for Redis.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
