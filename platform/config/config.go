// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the operator surface.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq-backed step scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetSchedulerQueue() string
	GetSchedulerConcurrency() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetEmailProvider() string
	GetBrevoAPIKey() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// TemplateStoreConfig provides settings for the remote template store.
type TemplateStoreConfig interface {
	GetTemplateStoreURL() string
	GetTemplateStoreAPIKey() string
	GetTemplateStoreTimeout() time.Duration
	IsTemplateStoreEnabled() bool
}

// SequenceConfig provides settings for the sequence catalog and operating mode.
type SequenceConfig interface {
	GetDefaultMode() string
	GetCatalogPath() string
}

// DispatchConfig provides settings consumed by the dispatch orchestrator.
type DispatchConfig interface {
	GetBookingURL() string
	GetSendTimeout() time.Duration
	GetStateWriteTimeout() time.Duration
}

// ArchiveConfig provides settings for the sent-message archive.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetArchiveBucket() string
	IsArchiveEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	RedisURL             string
	RedisTLSInsecure     bool
	SchedulerQueue       string
	SchedulerConcurrency int
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	DefaultMode          string
	CatalogPath          string
	BookingURL           string
	SendTimeout          time.Duration
	StateWriteTimeout    time.Duration
	TemplateStoreURL     string
	TemplateStoreAPIKey  string
	TemplateStoreTimeout time.Duration
	EmailEnabled         bool
	EmailProvider        string
	BrevoAPIKey          string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	EmailFromName        string
	EmailFromAddress     string
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	ArchiveBucket        string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetSchedulerQueue() string    { return c.SchedulerQueue }
func (c *Config) GetSchedulerConcurrency() int { return c.SchedulerConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// TemplateStoreConfig implementation
func (c *Config) GetTemplateStoreURL() string            { return c.TemplateStoreURL }
func (c *Config) GetTemplateStoreAPIKey() string         { return c.TemplateStoreAPIKey }
func (c *Config) GetTemplateStoreTimeout() time.Duration { return c.TemplateStoreTimeout }
func (c *Config) IsTemplateStoreEnabled() bool           { return c.TemplateStoreURL != "" }

// SequenceConfig implementation
func (c *Config) GetDefaultMode() string { return c.DefaultMode }
func (c *Config) GetCatalogPath() string { return c.CatalogPath }

// DispatchConfig implementation
func (c *Config) GetBookingURL() string               { return c.BookingURL }
func (c *Config) GetSendTimeout() time.Duration       { return c.SendTimeout }
func (c *Config) GetStateWriteTimeout() time.Duration { return c.StateWriteTimeout }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetArchiveBucket() string  { return c.ArchiveBucket }
func (c *Config) IsArchiveEnabled() bool    { return c.MinIOEndpoint != "" && c.ArchiveBucket != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	emailProvider := strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp"))

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		SchedulerQueue:       getEnv("SCHEDULER_QUEUE", "sequences"),
		SchedulerConcurrency: int(mustInt64(getEnv("SCHEDULER_CONCURRENCY", "10"))),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		DefaultMode:          strings.ToLower(getEnv("SEQUENCE_MODE", "production")),
		CatalogPath:          getEnv("SEQUENCE_CATALOG_PATH", ""),
		BookingURL:           getEnv("BOOKING_URL", "https://example.com/book"),
		SendTimeout:          mustDuration(getEnv("SEND_TIMEOUT", "15s")),
		StateWriteTimeout:    mustDuration(getEnv("STATE_WRITE_TIMEOUT", "5s")),
		TemplateStoreURL:     getEnv("TEMPLATE_STORE_URL", ""),
		TemplateStoreAPIKey:  getEnv("TEMPLATE_STORE_API_KEY", ""),
		TemplateStoreTimeout: mustDuration(getEnv("TEMPLATE_STORE_TIMEOUT", "5s")),
		EmailEnabled:         emailEnabled,
		EmailProvider:        emailProvider,
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Sequencer"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		ArchiveBucket:        getEnv("MINIO_BUCKET_MESSAGE_ARCHIVE", "message-archive"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.DefaultMode != "production" && cfg.DefaultMode != "testing" {
		return nil, fmt.Errorf("SEQUENCE_MODE must be either production or testing, got %q", cfg.DefaultMode)
	}
	if cfg.EmailEnabled {
		switch cfg.EmailProvider {
		case "smtp":
			if cfg.SMTPHost == "" {
				return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
			}
		case "brevo":
			if cfg.BrevoAPIKey == "" {
				return nil, fmt.Errorf("BREVO_API_KEY is required when EMAIL_PROVIDER is brevo")
			}
		default:
			return nil, fmt.Errorf("EMAIL_PROVIDER must be smtp or brevo, got %q", cfg.EmailProvider)
		}
		if cfg.EmailFromAddress == "" {
			return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
		}
	}
	if cfg.SendTimeout <= 0 || cfg.StateWriteTimeout <= 0 || cfg.TemplateStoreTimeout <= 0 {
		return nil, fmt.Errorf("SEND_TIMEOUT, STATE_WRITE_TIMEOUT and TEMPLATE_STORE_TIMEOUT must be positive durations")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
