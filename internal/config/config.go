package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading engine.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	DatabaseMaxConns int
	RedisURL         string
	NatsURL          string
	EventChannel     string
	OverrideCacheTTL time.Duration
	QueueWorkers     int
	JobRetries       int
	JobTimeout       time.Duration
	RecalcBatchSize  int
	AppealExtension  time.Duration
}

// HTTPAddress returns the address the ops HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Assessment Engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("event.channel", "assessment")
	v.SetDefault("override.cache_ttl", "5m")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.retries", 3)
	v.SetDefault("queue.timeout", "30s")
	v.SetDefault("recalc.batch_size", 100)
	v.SetDefault("appeal.extension", "72h")

	ttl, err := time.ParseDuration(v.GetString("override.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid override cache ttl: %w", err)
	}

	jobTimeout, err := time.ParseDuration(v.GetString("queue.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid queue timeout: %w", err)
	}

	appealExtension, err := time.ParseDuration(v.GetString("appeal.extension"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid appeal extension: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		DatabaseMaxConns: v.GetInt("database.max_conns"),
		RedisURL:         v.GetString("redis.url"),
		NatsURL:          v.GetString("nats.url"),
		EventChannel:     v.GetString("event.channel"),
		OverrideCacheTTL: ttl,
		QueueWorkers:     v.GetInt("queue.workers"),
		JobRetries:       v.GetInt("queue.retries"),
		JobTimeout:       jobTimeout,
		RecalcBatchSize:  v.GetInt("recalc.batch_size"),
		AppealExtension:  appealExtension,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.DatabaseMaxConns <= 0 {
		cfg.DatabaseMaxConns = 25
	}

	if cfg.QueueWorkers <= 0 {
		cfg.QueueWorkers = 4
	}

	if cfg.JobRetries <= 0 {
		cfg.JobRetries = 3
	}

	if cfg.RecalcBatchSize <= 0 {
		cfg.RecalcBatchSize = 100
	}

	return cfg, nil
}
