package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr  string
	AdminToken  string // bearer token guarding /api
	CORSOrigins string

	// Storage
	Storage     string // "postgres" or "memory"
	DatabaseURL string
	RedisURL    string // optional, backs the API rate limiter

	// Engine
	TimeZone      string // rule windows are evaluated in this zone
	ActionTimeout time.Duration
	CacheTTL      time.Duration
	CacheSize     int

	// Jobs
	RedundancyScanInterval time.Duration // 0 disables the scanner
	CleanupInterval        time.Duration
	RetentionDays          int

	// Transports
	MessageGatewayURL string
	SMSGatewayURL     string
	SMSRatePerSecond  float64

	// Email (SMTP)
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SMTPTLS        string   // "none", "tls", "starttls"
	ReviewerEmails []string // notified when a submission opens
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:         getEnv("ENV", "development"),
		ServerAddr:  getEnv("SERVER_ADDR", ":3000"),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", ""),

		Storage:     getEnv("STORAGE", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/keywordhub?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", ""),

		TimeZone:      getEnv("TIME_ZONE", "Asia/Shanghai"),
		ActionTimeout: getEnvDuration("ACTION_TIMEOUT", 5*time.Second),
		CacheTTL:      getEnvDuration("CACHE_TTL", time.Minute),
		CacheSize:     getEnvInt("CACHE_SIZE", 1024),

		RedundancyScanInterval: getEnvDuration("REDUNDANCY_SCAN_INTERVAL", 24*time.Hour),
		CleanupInterval:        getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
		RetentionDays:          getEnvInt("RETENTION_DAYS", 180),

		MessageGatewayURL: getEnv("MESSAGE_GATEWAY_URL", ""),
		SMSGatewayURL:     getEnv("SMS_GATEWAY_URL", ""),
		SMSRatePerSecond:  getEnvFloat("SMS_RATE_PER_SECOND", 5),

		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", ""),
		SMTPFromName:   getEnv("SMTP_FROM_NAME", "Keyword Hub"),
		SMTPTLS:        getEnv("SMTP_TLS", "starttls"),
		ReviewerEmails: splitList(getEnv("REVIEWER_EMAILS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsEmailEnabled returns true if SMTP is configured.
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Retention returns how long logs and statistics are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
