package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/adpulse/adpulse-go/internal/analyzer"
	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/planner"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/pkg/insights"
)

type Config struct {
	Environment string                 `mapstructure:"environment"`
	LogLevel    string                 `mapstructure:"log_level"`
	Server      ServerConfig           `mapstructure:"server"`
	Database    DatabaseConfig         `mapstructure:"database"`
	Redis       RedisConfig            `mapstructure:"redis"`
	Insights    insights.ClientConfig  `mapstructure:"insights"`
	RateLimit   ratelimit.Config       `mapstructure:"rate_limit"`
	Cache       CacheConfig            `mapstructure:"cache"`
	Analyzer    analyzer.Config        `mapstructure:"analyzer"`
	Anomaly     analyzer.AnomalyConfig `mapstructure:"anomaly"`
	Freshness   freshness.Config       `mapstructure:"freshness"`
	Planner     planner.Config         `mapstructure:"planner"`
	Telegram    TelegramConfig         `mapstructure:"telegram"`
	Telemetry   TelemetryConfig        `mapstructure:"telemetry"`
	Security    SecurityConfig         `mapstructure:"security"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	MemoryTTL       string `mapstructure:"memory_ttl"`
	PersistentTTL   string `mapstructure:"persistent_ttl"`
	JanitorInterval string `mapstructure:"janitor_interval"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type SecurityConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry  string `mapstructure:"jwt_expiry"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
	AdminKey   string `mapstructure:"admin_key" json:"-" yaml:"-"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind secrets that only ever come from the environment
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("insights.access_token", "INSIGHTS_ACCESS_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind INSIGHTS_ACCESS_TOKEN environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	environment := strings.ToLower(config.Environment)

	// Validate JWT secret in non-development environments
	if environment != "development" && config.Security.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	// Validate JWT expiry duration
	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return nil, fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	// Validate bcrypt cost parameter
	if config.Security.BcryptCost < bcrypt.MinCost || config.Security.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, config.Security.BcryptCost)
	}

	for _, ttl := range []string{config.Cache.MemoryTTL, config.Cache.PersistentTTL, config.Cache.JanitorInterval} {
		if _, err := time.ParseDuration(ttl); err != nil {
			return nil, fmt.Errorf("invalid cache duration %q: %w", ttl, err)
		}
	}

	// Update config with normalized environment
	config.Environment = environment

	return &config, nil
}

// MemoryTTLDuration returns the parsed L1 TTL.
func (c *CacheConfig) MemoryTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.MemoryTTL)
	return d
}

// PersistentTTLDuration returns the parsed L2 TTL.
func (c *CacheConfig) PersistentTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.PersistentTTL)
	return d
}

// JanitorIntervalDuration returns the parsed janitor sweep interval.
func (c *CacheConfig) JanitorIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.JanitorInterval)
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "adpulse")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.conn_max_lifetime", "300s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Insights API
	viper.SetDefault("insights.service_url", "https://graph.insights.example.com")
	viper.SetDefault("insights.access_token", "")
	viper.SetDefault("insights.timeout", 30)
	viper.SetDefault("insights.page_size", 25)

	// Rate limits: these mirror the upstream quota contract
	viper.SetDefault("rate_limit.hourly_quota", 200)
	viper.SetDefault("rate_limit.daily_quota", 4800)

	// Cache
	viper.SetDefault("cache.memory_ttl", "5m")
	viper.SetDefault("cache.persistent_ttl", "1h")
	viper.SetDefault("cache.janitor_interval", "10m")

	// Analyzers
	viper.SetDefault("analyzer.min_gap_days", 2)
	viper.SetDefault("analyzer.preceding_window_days", 7)
	viper.SetDefault("anomaly.min_baseline_samples", 3)
	viper.SetDefault("anomaly.frequency_spike_ratio", 1.8)
	viper.SetDefault("anomaly.ctr_collapse_ratio", 0.5)
	viper.SetDefault("anomaly.impression_spike_ratio", 2.5)

	// Freshness
	viper.SetDefault("freshness.recent_half_life", "1h")
	viper.SetDefault("freshness.ongoing_half_life", "12h")
	viper.SetDefault("freshness.historical_half_life", "168h")

	// Planner
	viper.SetDefault("planner.estimated_rows_per_day", 10)
	viper.SetDefault("planner.min_confidence", 0.4)
	viper.SetDefault("planner.incremental_tail_days", 2)
	viper.SetDefault("planner.per_call_latency", "800ms")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")
	viper.SetDefault("telegram.enabled", false)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "adpulse-engine")

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.bcrypt_cost", 12)
	viper.SetDefault("security.admin_key", "")
}
