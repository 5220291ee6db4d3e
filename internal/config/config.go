package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Persistence and locking. Empty RedisURL keeps everything in memory.
	RedisURL string
	LockTTL  time.Duration

	// Real-time alert fan-out
	NATSURL           string
	NATSToken         string
	NATSSubjectPrefix string
	TeamsWebhookURL   string

	// Escalation email
	AlertEmail   string // fallback recipient when a business has none
	AdminURL     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Engagement analysis
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Azure Storage configuration for the case archive
	StorageAccount   string
	StorageContainer string

	// Session housekeeping
	SessionIdleTimeout   time.Duration
	SessionSweepSchedule string

	// Dispatch timeouts and retries
	SideEffectTimeout    time.Duration
	EnrichmentTimeout    time.Duration
	StatePersistAttempts int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		RedisURL: getEnv("REDIS_URL", ""),
		LockTTL:  getDurationEnv("LOCK_TTL", 30*time.Second),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSToken:         getEnv("NATS_TOKEN", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "chat"),
		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),

		AlertEmail:   getEnv("ALERT_EMAIL", ""),
		AdminURL:     getEnv("ADMIN_URL", "http://localhost:3000"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "escalations"),

		SessionIdleTimeout:   getDurationEnv("SESSION_IDLE_TIMEOUT", 5*time.Minute),
		SessionSweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "0 * * * * *"),

		SideEffectTimeout:    getDurationEnv("SIDE_EFFECT_TIMEOUT", 10*time.Second),
		EnrichmentTimeout:    getDurationEnv("ENRICHMENT_TIMEOUT", 45*time.Second),
		StatePersistAttempts: getIntEnv("STATE_PERSIST_ATTEMPTS", 3),
	}

	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUsername
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AlertEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when ALERT_EMAIL is set")
		}
	}

	if c.StatePersistAttempts < 1 {
		return fmt.Errorf("STATE_PERSIST_ATTEMPTS must be at least 1")
	}

	durations := map[string]time.Duration{
		"LOCK_TTL":             c.LockTTL,
		"SESSION_IDLE_TIMEOUT": c.SessionIdleTimeout,
		"SIDE_EFFECT_TIMEOUT":  c.SideEffectTimeout,
		"ENRICHMENT_TIMEOUT":   c.EnrichmentTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	return nil
}

// EmailEnabled reports whether SMTP delivery is configured
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
