package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Search        SearchConfig        `yaml:"search"`
	Listings      ListingsConfig      `yaml:"listings"`
	Sync          SyncConfig          `yaml:"sync"`
	Commissions   CommissionsConfig   `yaml:"commissions"`
	Payouts       PayoutsConfig       `yaml:"payouts"`
	Stripe        StripeConfig        `yaml:"stripe"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Cache         CacheConfig         `yaml:"cache"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Timezone      string              `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	LogSQL   bool           `yaml:"log_sql"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig is used for local development
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// ListingsConfig configures the third-party listings API (RapidAPI Bayut)
type ListingsConfig struct {
	Source            string        `yaml:"source"`
	BaseURL           string        `yaml:"base_url"`
	Host              string        `yaml:"host"`
	APIKey            string        `yaml:"api_key"`
	Purpose           string        `yaml:"purpose"`
	HitsPerPage       int           `yaml:"hits_per_page"`
	TimeoutSeconds    int           `yaml:"timeout_seconds"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	DefaultAreas      []string      `yaml:"default_areas"`
	Breaker           BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig configures the upstream circuit breaker
type BreakerConfig struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// SyncConfig controls the property sync coordinator and its schedule
type SyncConfig struct {
	ScheduleName    string `yaml:"schedule_name"`
	ScheduleEnabled bool   `yaml:"schedule_enabled"`
	CronSpec        string `yaml:"cron_spec"`
	MaxPages        int    `yaml:"max_pages"`
	AreaConcurrency int    `yaml:"area_concurrency"`
	TrackChanges    bool   `yaml:"track_changes"`
}

// CommissionsConfig controls the commission settlement job
type CommissionsConfig struct {
	Enabled         bool    `yaml:"enabled"`
	CronSpec        string  `yaml:"cron_spec"`
	DefaultRate     float64 `yaml:"default_rate"`
	Concurrency     int     `yaml:"concurrency"`
	ClaimTTLMinutes int     `yaml:"claim_ttl_minutes"`
}

// PayoutsConfig controls the affiliate payout job
type PayoutsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CronSpec     string `yaml:"cron_spec"`
	MinimumCents int64  `yaml:"minimum_cents"`
	Currency     string `yaml:"currency"`
	Concurrency  int    `yaml:"concurrency"`
}

// StripeConfig contains payment API credentials
type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// NotificationsConfig contains email delivery settings
type NotificationsConfig struct {
	SendgridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	SandboxMode    bool   `yaml:"sandbox_mode"`
	DashboardURL   string `yaml:"dashboard_url"`
}

// CacheConfig configures the two-tier cache
type CacheConfig struct {
	LocalCapacity     int    `yaml:"local_capacity"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	RateLimitFailMode string `yaml:"rate_limit_fail_mode"` // fail_open, fail_closed
}

// RateLimitConfig contains rate limiting settings for job endpoints
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// CleanupConfig controls stale listing cleanup
type CleanupConfig struct {
	StaleDays        int `yaml:"stale_days"`
	RetentionDays    int `yaml:"retention_days"`
	MaxDeletionCount int `yaml:"max_deletion_count"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "postgres",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "dubai_wealth",
				Database: "dubai_wealth",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{Path: "data/dubai_wealth.db"},
		},
		Search: SearchConfig{
			Enabled: false,
			Meilisearch: MeilisearchConfig{
				Host:  "http://localhost:7700",
				Index: "properties",
			},
		},
		Listings: ListingsConfig{
			Source:            "bayut",
			BaseURL:           "https://bayut.p.rapidapi.com",
			Host:              "bayut.p.rapidapi.com",
			Purpose:           "for-sale",
			HitsPerPage:       25,
			TimeoutSeconds:    30,
			RequestsPerSecond: 2,
			// Dubai Marina, Downtown Dubai, Business Bay, Palm Jumeirah, JVC
			DefaultAreas: []string{"5002", "6901", "6588", "5460", "8143"},
			Breaker: BreakerConfig{
				ConsecutiveFailures: 3,
				ResetTimeoutSeconds: 300,
			},
		},
		Sync: SyncConfig{
			ScheduleName:    "bayut-daily",
			ScheduleEnabled: true,
			CronSpec:        "0 3 * * *",
			MaxPages:        3,
			AreaConcurrency: 1,
			TrackChanges:    true,
		},
		Commissions: CommissionsConfig{
			Enabled:         true,
			CronSpec:        "0 * * * *",
			DefaultRate:     0.20,
			Concurrency:     1,
			ClaimTTLMinutes: 30,
		},
		Payouts: PayoutsConfig{
			Enabled:      true,
			CronSpec:     "0 6 1 * *",
			MinimumCents: 5000,
			Currency:     "usd",
			Concurrency:  1,
		},
		Notifications: NotificationsConfig{
			FromEmail:    "affiliates@dubaiwealthhub.com",
			FromName:     "Dubai Wealth Hub",
			DashboardURL: "https://dubaiwealthhub.com/affiliate",
		},
		Cache: CacheConfig{
			LocalCapacity:     500,
			DefaultTTLSeconds: 300,
			RateLimitFailMode: "fail_open",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
		},
		Cleanup: CleanupConfig{
			StaleDays:        14,
			RetentionDays:    90,
			MaxDeletionCount: 10000,
		},
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Timezone: "Asia/Dubai",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides secrets and endpoints from environment variables
func (c *Config) ApplyEnv() {
	overrideString(&c.Database.Type, "DB_TYPE")
	switch c.Database.Type {
	case "mysql":
		overrideString(&c.Database.MySQL.Host, "DB_HOST")
		overrideInt(&c.Database.MySQL.Port, "DB_PORT")
		overrideString(&c.Database.MySQL.User, "DB_USER")
		overrideString(&c.Database.MySQL.Password, "DB_PASSWORD")
		overrideString(&c.Database.MySQL.Database, "DB_NAME")
	case "sqlite":
		overrideString(&c.Database.SQLite.Path, "DB_PATH")
	default:
		overrideString(&c.Database.Postgres.Host, "DB_HOST")
		overrideInt(&c.Database.Postgres.Port, "DB_PORT")
		overrideString(&c.Database.Postgres.User, "DB_USER")
		overrideString(&c.Database.Postgres.Password, "DB_PASSWORD")
		overrideString(&c.Database.Postgres.Database, "DB_NAME")
	}

	overrideString(&c.Listings.APIKey, "BAYUT_API_KEY")
	overrideString(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	overrideString(&c.Notifications.SendgridAPIKey, "SENDGRID_API_KEY")
	overrideString(&c.Search.Meilisearch.Host, "MEILISEARCH_HOST")
	overrideString(&c.Search.Meilisearch.APIKey, "MEILISEARCH_KEY")
	overrideString(&c.Logging.Level, "LOG_LEVEL")
	overrideString(&c.Server.Port, "PORT")

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// GetTimeout returns the request timeout as a duration
func (c *ListingsConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetResetTimeout returns the breaker reset timeout as a duration
func (c *BreakerConfig) GetResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}

// GetClaimTTL returns how long a referral claim is honoured
func (c *CommissionsConfig) GetClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMinutes) * time.Minute
}

// GetDefaultTTL returns the default cache TTL as a duration
func (c *CacheConfig) GetDefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// Location returns the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
