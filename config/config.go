package config

import (
	"encoding/json"
	"log/slog"
	"time"

	"gradekit/adapters/mongodb"
	"gradekit/adapters/redis"
	"gradekit/adapters/sqlx"
	"gradekit/aggregate"
	"gradekit/core"
	"gradekit/engine"
	"gradekit/integrations/webhook"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage adapter names.
const (
	AdapterMemory  = "memory"
	AdapterFile    = "file"
	AdapterRedis   = "redis"
	AdapterSQL     = "sql"
	AdapterMongoDB = "mongodb"
)

// Config holds the complete application configuration.
// Environment variables are prefixed with GRADEKIT_, nested sections add their own prefix.
type Config struct {
	Environment Environment `json:"environment" yaml:"environment" env:"ENV" validate:"required,oneof=development testing staging production"`
	Profile     string      `json:"profile" yaml:"profile" env:"PROFILE"`

	Server    ServerConfig    `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Storage   StorageConfig   `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Grading   GradingConfig   `json:"grading" yaml:"grading" envPrefix:"GRADING_"`
	Events    EventsConfig    `json:"events" yaml:"events" envPrefix:"EVENTS_"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Security  SecurityConfig  `json:"security" yaml:"security" envPrefix:"SECURITY_"`
	Analytics AnalyticsConfig `json:"analytics" yaml:"analytics" envPrefix:"ANALYTICS_"`

	// Admins maps admin usernames to bcrypt hashes (GRADEKIT_ADMINS="root:$2a$...").
	Admins   map[string]string `json:"admins,omitempty" yaml:"admins" env:"ADMINS"`
	Webhooks webhook.Config    `json:"webhooks" yaml:"webhooks" envPrefix:"WEBHOOK_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"ADDR" validate:"required"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" yaml:"cors_origin" env:"CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string         `json:"adapter" yaml:"adapter" env:"ADAPTER" validate:"oneof=memory file redis sql mongodb"`
	Redis   redis.Config   `json:"redis,omitempty" yaml:"redis" envPrefix:"REDIS_"`
	SQL     sqlx.Config    `json:"sql,omitempty" yaml:"sql" envPrefix:"SQL_"`
	MongoDB mongodb.Config `json:"mongodb,omitempty" yaml:"mongodb" envPrefix:"MONGO_"`
	File    FileConfig     `json:"file,omitempty" yaml:"file" envPrefix:"FILE_"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" yaml:"path" env:"PATH"`
}

// GradingConfig holds the score policy and aggregation settings.
type GradingConfig struct {
	ScoreMin int              `json:"score_min" yaml:"score_min" env:"SCORE_MIN"`
	ScoreMax int              `json:"score_max" yaml:"score_max" env:"SCORE_MAX"`
	Bands    []aggregate.Band `json:"bands,omitempty" yaml:"bands" envPrefix:"BANDS_"`
	// DefaultTerm is "<year>-<semester>"; empty means semester 1 of the current year.
	DefaultTerm  string        `json:"default_term,omitempty" yaml:"default_term" env:"DEFAULT_TERM"`
	StoreTimeout time.Duration `json:"store_timeout" yaml:"store_timeout" env:"STORE_TIMEOUT" validate:"gt=0"`
}

// EventsConfig controls how score events reach the realtime hub and webhooks.
type EventsConfig struct {
	DispatchMode string `json:"dispatch_mode" yaml:"dispatch_mode" env:"DISPATCH_MODE" validate:"oneof=sync async"`
	HubBuffer    int    `json:"hub_buffer" yaml:"hub_buffer" env:"HUB_BUFFER" validate:"gt=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format     string            `json:"format" yaml:"format" env:"FORMAT" validate:"oneof=json text"`
	Output     string            `json:"output" yaml:"output" env:"OUTPUT" validate:"oneof=stdout stderr"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes" env:"ATTRIBUTES"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	APIKeys         []string        `json:"api_keys,omitempty" yaml:"api_keys" env:"API_KEYS"`
}

// AnalyticsConfig controls the activity counters, the subject leaderboards
// and the periodic report export.
type AnalyticsConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Interval       time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
	ExportEndpoint string        `json:"export_endpoint,omitempty" yaml:"export_endpoint" env:"EXPORT_ENDPOINT"`
	ExportAPIKey   string        `json:"export_api_key,omitempty" yaml:"export_api_key" env:"EXPORT_API_KEY"`
	ExportBatch    int           `json:"export_batch" yaml:"export_batch" env:"EXPORT_BATCH"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"RPM"`
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: AdapterMemory,
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			MongoDB: mongodb.DefaultConfig(),
			File: FileConfig{
				Path: "./data/gradekit.json",
			},
		},
		Grading: GradingConfig{
			ScoreMin:     0,
			ScoreMax:     100,
			Bands:        aggregate.DefaultBands(),
			StoreTimeout: 3 * time.Second,
		},
		Events: EventsConfig{
			DispatchMode: "async",
			HubBuffer:    256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
			},
			APIKeys: []string{},
		},
		Analytics: AnalyticsConfig{
			Enabled:     true,
			Interval:    time.Hour,
			ExportBatch: 10,
		},
		Admins: map[string]string{},
	}
}

// Settings converts the grading section into engine settings.
func (g GradingConfig) Settings(logger *slog.Logger) (engine.Settings, error) {
	s := engine.DefaultSettings()
	s.Policy = core.ScorePolicy{Min: g.ScoreMin, Max: g.ScoreMax}
	if len(g.Bands) > 0 {
		s.Bands = g.Bands
	}
	if g.DefaultTerm != "" {
		t, err := core.ParseTerm(g.DefaultTerm)
		if err != nil {
			return engine.Settings{}, err
		}
		s.DefaultTerm = t
	}
	if g.StoreTimeout > 0 {
		s.StoreTimeout = g.StoreTimeout
	}
	if logger != nil {
		s.Logger = logger
	}
	return s, nil
}

// Mode maps the events section onto the event bus mode.
func (e EventsConfig) Mode() engine.DispatchMode {
	if e.DispatchMode == "sync" {
		return engine.DispatchSync
	}
	return engine.DispatchAsync
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Storage.MongoDB.URI != "" {
		cfg.Storage.MongoDB.URI = "[REDACTED]"
	}
	if cfg.Analytics.ExportAPIKey != "" {
		cfg.Analytics.ExportAPIKey = "[REDACTED]"
	}
	if cfg.Webhooks.Secret != "" {
		cfg.Webhooks.Secret = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}
	admins := make(map[string]string, len(cfg.Admins))
	for name := range cfg.Admins {
		admins[name] = "[REDACTED]"
	}
	cfg.Admins = admins

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
