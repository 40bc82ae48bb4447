// Package config provides configuration management for the property scanner service.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Workflow  WorkflowConfig
	Jobs      JobsConfig
	Scanner   ScannerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// DatabaseURL returns the URL form used by golang-migrate
func (c PostgresConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// WorkflowConfig holds the external workflow runner (n8n) settings
type WorkflowConfig struct {
	BaseURL string
	Timeout time.Duration
	// TriggerTypes lists the job types whose entry into in_progress notifies the runner
	TriggerTypes []string
}

// JobsConfig holds batch job manager settings
type JobsConfig struct {
	MaxUpdateAttempts int
	// FailureThreshold marks a job failed once error_count reaches it. 0 disables inference.
	FailureThreshold int
}

// ScannerConfig holds alert scanner settings
type ScannerConfig struct {
	PageSize    int
	Concurrency int
	ScoreMargin float64
	BidMargin   float64
	LeaseTTL    time.Duration
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// RateLimitConfig holds per-role request rates (requests per second)
type RateLimitConfig struct {
	AdminRPS  int
	UserRPS   int
	ViewerRPS int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "property_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Workflow: WorkflowConfig{
			BaseURL:      strings.TrimRight(getEnv("WORKFLOW_BASE_URL", getEnv("N8N_BASE_URL", "")), "/"),
			Timeout:      getEnvAsDuration("WORKFLOW_TIMEOUT", 5*time.Second),
			TriggerTypes: getEnvAsList("WORKFLOW_TRIGGER_TYPES", []string{"regrid_scraping"}),
		},
		Jobs: JobsConfig{
			MaxUpdateAttempts: getEnvAsInt("JOB_UPDATE_MAX_ATTEMPTS", 3),
			FailureThreshold:  getEnvAsInt("JOB_FAILURE_THRESHOLD", 0),
		},
		Scanner: ScannerConfig{
			PageSize:    getEnvAsInt("SCAN_PAGE_SIZE", 500),
			Concurrency: getEnvAsInt("SCAN_CONCURRENCY", 4),
			ScoreMargin: getEnvAsFloat("SCAN_SCORE_MARGIN", 10),
			BidMargin:   getEnvAsFloat("SCAN_BID_MARGIN", 0.25),
			LeaseTTL:    getEnvAsDuration("SCAN_LEASE_TTL", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		RateLimit: RateLimitConfig{
			AdminRPS:  getEnvAsInt("RATE_LIMIT_ADMIN_RPS", 50),
			UserRPS:   getEnvAsInt("RATE_LIMIT_USER_RPS", 20),
			ViewerRPS: getEnvAsInt("RATE_LIMIT_VIEWER_RPS", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.Jobs.MaxUpdateAttempts <= 0 {
		return errors.New("JOB_UPDATE_MAX_ATTEMPTS must be positive")
	}
	if c.Jobs.FailureThreshold < 0 {
		return errors.New("JOB_FAILURE_THRESHOLD cannot be negative")
	}
	if c.Scanner.PageSize <= 0 {
		return errors.New("SCAN_PAGE_SIZE must be positive")
	}
	if c.Scanner.Concurrency <= 0 {
		return errors.New("SCAN_CONCURRENCY must be positive")
	}
	if c.Scanner.BidMargin < 0 || c.Scanner.BidMargin >= 1 {
		return errors.New("SCAN_BID_MARGIN must be in [0, 1)")
	}
	if c.Workflow.Timeout <= 0 {
		return errors.New("WORKFLOW_TIMEOUT must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma separated environment variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
