package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service       ServiceConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Orchestration OrchestrationConfig
	Catalog       CatalogConfig
	Telemetry     TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
}

// OrchestrationConfig bounds a single workflow execution
type OrchestrationConfig struct {
	MaxParallelActions     int
	DefaultActionTimeout   time.Duration
	DefaultWorkflowTimeout time.Duration
	Retry                  RetryConfig
}

// RetryConfig controls the per-action retry schedule
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	UseJitter     bool
	MaxDelay      time.Duration
}

// CatalogConfig controls workflow definition storage behavior
type CatalogConfig struct {
	AutoRegisterActionsOnStartup   bool
	ValidateActionSchemasOnStartup bool
	AllowDraftExecution            bool
	StrictReachability             bool
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "conductor"),
			User:        getEnv("POSTGRES_USER", "conductor"),
			Password:    getEnv("POSTGRES_PASSWORD", "conductor"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Enabled: getEnvBool("REDIS_ENABLED", true),
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			DB:      getEnvInt("REDIS_DB", 0),
		},
		Orchestration: OrchestrationConfig{
			MaxParallelActions:     getEnvInt("ORCH_MAX_PARALLEL_ACTIONS", 10),
			DefaultActionTimeout:   getEnvDuration("ORCH_ACTION_TIMEOUT", 5*time.Minute),
			DefaultWorkflowTimeout: getEnvDuration("ORCH_WORKFLOW_TIMEOUT", 1*time.Hour),
			Retry: RetryConfig{
				MaxAttempts:   getEnvInt("ORCH_RETRY_MAX_ATTEMPTS", 3),
				InitialDelay:  getEnvDuration("ORCH_RETRY_INITIAL_DELAY", 200*time.Millisecond),
				BackoffFactor: getEnvFloat("ORCH_RETRY_BACKOFF_FACTOR", 2.0),
				UseJitter:     getEnvBool("ORCH_RETRY_USE_JITTER", true),
				MaxDelay:      getEnvDuration("ORCH_RETRY_MAX_DELAY", 60*time.Second),
			},
		},
		Catalog: CatalogConfig{
			AutoRegisterActionsOnStartup:   getEnvBool("CATALOG_AUTO_REGISTER_ACTIONS", true),
			ValidateActionSchemasOnStartup: getEnvBool("CATALOG_VALIDATE_ACTION_SCHEMAS", true),
			AllowDraftExecution:            getEnvBool("CATALOG_ALLOW_DRAFT_EXECUTION", false),
			StrictReachability:             getEnvBool("CATALOG_STRICT_REACHABILITY", false),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Orchestration.MaxParallelActions < 1 {
		return fmt.Errorf("max_parallel_actions must be >= 1")
	}

	if c.Orchestration.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1")
	}

	if c.Orchestration.Retry.BackoffFactor < 1.0 {
		return fmt.Errorf("retry backoff_factor must be >= 1.0")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
