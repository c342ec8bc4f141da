package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Pipeline PipelineConfig
	Kafka    KafkaConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host           string
	Port           string
	Name           string
	User           string
	Password       string
	PoolMin        int
	PoolMax        int
	ConnectRetries int
	RetryInterval  time.Duration
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// PipelineConfig controls the derivation orchestrator.
type PipelineConfig struct {
	// MaxCloudCover skips scenes above this percentage. Nil disables the gate.
	MaxCloudCover *float64
	DefaultStyle  string
	// Interval between scheduled runs. Zero disables the scheduler.
	Interval   time.Duration
	Workers    int
	RunOnStart bool
}

// KafkaConfig holds derivation event publishing configuration.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "canopy")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("DB_CONNECT_RETRIES", 30)
	v.SetDefault("DB_RETRY_INTERVAL", "2s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_INTERVAL", "15m")
	v.SetDefault("PIPELINE_DEFAULT_STYLE", "default")
	v.SetDefault("PIPELINE_RUN_ON_START", true)
	v.SetDefault("PIPELINE_EVENTS_TOPIC", "ndvi.derivations")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("PORT"),
			Env:      v.GetString("ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:           v.GetString("DB_HOST"),
			Port:           v.GetString("DB_PORT"),
			Name:           v.GetString("DB_NAME"),
			User:           v.GetString("DB_USER"),
			Password:       v.GetString("DB_PASSWORD"),
			PoolMin:        v.GetInt("DB_POOL_MIN"),
			PoolMax:        v.GetInt("DB_POOL_MAX"),
			ConnectRetries: v.GetInt("DB_CONNECT_RETRIES"),
			RetryInterval:  v.GetDuration("DB_RETRY_INTERVAL"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Pipeline: PipelineConfig{
			DefaultStyle: v.GetString("PIPELINE_DEFAULT_STYLE"),
			Interval:     v.GetDuration("PIPELINE_INTERVAL"),
			Workers:      v.GetInt("PIPELINE_WORKERS"),
			RunOnStart:   v.GetBool("PIPELINE_RUN_ON_START"),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("PIPELINE_EVENTS_TOPIC"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	if v.IsSet("PIPELINE_MAX_CLOUD_COVER") && v.GetString("PIPELINE_MAX_CLOUD_COVER") != "" {
		maxCloud := v.GetFloat64("PIPELINE_MAX_CLOUD_COVER")
		cfg.Pipeline.MaxCloudCover = &maxCloud
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	if c.Database.ConnectRetries < 1 {
		return fmt.Errorf("DB_CONNECT_RETRIES must be at least 1")
	}
	if c.Database.RetryInterval < 0 {
		return fmt.Errorf("DB_RETRY_INTERVAL must be non-negative")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	// Validate pipeline config
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1")
	}
	if c.Pipeline.Interval < 0 {
		return fmt.Errorf("PIPELINE_INTERVAL must be non-negative")
	}
	if c.Pipeline.DefaultStyle == "" {
		return fmt.Errorf("PIPELINE_DEFAULT_STYLE is required")
	}
	if mc := c.Pipeline.MaxCloudCover; mc != nil && (*mc < 0 || *mc > 100) {
		return fmt.Errorf("PIPELINE_MAX_CLOUD_COVER must be between 0 and 100")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("PIPELINE_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// parseList splits a comma-separated string into a slice of trimmed,
// non-empty values.
func parseList(values string) []string {
	if values == "" {
		return []string{}
	}

	parts := strings.Split(values, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
