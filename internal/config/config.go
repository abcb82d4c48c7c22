package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DatabaseURL           string
	ServerPort            string
	FrontendURL           string
	RedisURL              string
	RabbitMQURL           string
	RabbitMQPrefetch      int
	DefaultTimezone       string
	DailyResetConcurrency int
	DispatchInterval      time.Duration
	CronSecret            string
	JWKSURL               string
	JWTIssuer             string
	RateLimit             string
	WorkerDebugMode       bool
	ServerDebugMode       bool
	OTELEnabled           bool
	OTELEndpoint          string
}

// ConfigFileEnv names the optional YAML file whose keys mirror the environment variables
const ConfigFileEnv = "HABITUAL_CONFIG_FILE"

// Load loads configuration from environment variables, falling back to the optional
// YAML file named by HABITUAL_CONFIG_FILE and then to defaults.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv(ConfigFileEnv))
	if err != nil {
		return nil, err
	}
	src := source{file: file}

	cfg := &Config{
		DatabaseURL:           src.getEnv("DATABASE_URL", ""),
		ServerPort:            src.getEnv("SERVER_PORT", "8080"),
		FrontendURL:           src.getEnv("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:              src.getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:           src.getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:      src.getEnvInt("RABBITMQ_PREFETCH", 1),
		DefaultTimezone:       src.getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),
		DailyResetConcurrency: src.getEnvInt("DAILY_RESET_CONCURRENCY", 1),
		DispatchInterval:      src.getEnvDuration("DISPATCH_INTERVAL", time.Minute),
		CronSecret:            src.getEnv("CRON_SECRET", ""),
		JWKSURL:               src.getEnv("JWKS_URL", ""),
		JWTIssuer:             src.getEnv("JWT_ISSUER", ""),
		RateLimit:             src.getEnv("RATE_LIMIT", "100-M"),
		WorkerDebugMode:       src.getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:       src.getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:           src.getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:          src.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.DailyResetConcurrency < 1 {
		return nil, fmt.Errorf("DAILY_RESET_CONCURRENCY must be at least 1, got %d", cfg.DailyResetConcurrency)
	}

	if cfg.DispatchInterval <= 0 {
		return nil, fmt.Errorf("DISPATCH_INTERVAL must be positive, got %s", cfg.DispatchInterval)
	}

	return cfg, nil
}

// RequireRabbitMQ reports an error when the queue-backed features are configured without a broker
func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for the daily reset worker")
	}
	return nil
}

func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// source resolves a key from the environment first, then the config file
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) getEnvBool(key string, defaultValue bool) bool {
	if value := s.lookup(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (s source) getEnvInt(key string, defaultValue int) int {
	if value := s.lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (s source) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.lookup(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
