package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the plot service configuration, loaded from the environment.
type Config struct {
	Port     string `envconfig:"PLOT_SERVER_PORT" default:"8084"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNECTIONS" default:"10"`

	// Redis (optional; empty address falls back to the in-process lock)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	SnapshotTTL   time.Duration `envconfig:"SNAPSHOT_LOCK_TTL" default:"15s"`

	// RabbitMQ (optional; empty URL disables event publishing)
	RabbitMQURL string `envconfig:"RABBITMQ_URL" default:""`

	// Text generation
	TextGenAPIKey     string        `envconfig:"TEXTGEN_API_KEY" default:""`
	TextGenBaseURL    string        `envconfig:"TEXTGEN_BASE_URL" default:""`
	TextGenModel      string        `envconfig:"TEXTGEN_MODEL" default:"deepseek/deepseek-chat-v3-0324:free"`
	TextGenTimeout    time.Duration `envconfig:"TEXTGEN_TIMEOUT" default:"120s"`
	TextGenMaxRetries int           `envconfig:"TEXTGEN_MAX_RETRIES" default:"3"`

	// CORS
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load plot-service configuration: %w", err)
	}
	return &cfg, nil
}
