package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote backends accepted in TODO_REMOTE.
const (
	RemoteNone     = "none"
	RemoteMemory   = "memory"
	RemotePostgres = "postgres"
	RemoteRedis    = "redis"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort     string
	RequestTimeout time.Duration

	// OpenTelemetry settings
	OTLPEndpoint string
	ServiceName  string
	Environment  string

	// Storage settings
	LocalDBPath string
	Remote      string
	DatabaseURL string
	RedisURL    string

	// RefreshSchedule is a cron spec for marking the task cache dirty.
	// Empty disables the job.
	RefreshSchedule string

	// LogFile is where the CLI writes its logs. Empty logs warnings to stderr.
	LogFile string
}

// Load returns configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first if present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 5*time.Second),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "todo-mvp"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LocalDBPath:     getEnv("TODO_DB_PATH", "./data/tasks.db"),
		Remote:          strings.ToLower(getEnv("TODO_REMOTE", RemoteNone)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RefreshSchedule: getEnv("TASKS_REFRESH_SCHEDULE", "@every 5m"),
		LogFile:         os.Getenv("TODO_LOG_FILE"),
	}

	switch cfg.Remote {
	case RemoteNone, RemoteMemory, RemoteRedis:
	case RemotePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when TODO_REMOTE=%s", RemotePostgres)
		}
	default:
		return nil, fmt.Errorf("unknown TODO_REMOTE %q", cfg.Remote)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
