// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LogLevel    string
	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool
	// CORSAllowedOrigins is empty in development, which allows any localhost origin.
	CORSAllowedOrigins []string
	LLM                LLMConfig
	Coach              CoachConfig
	RateLimit          RateLimitConfig
	Retention          RetentionConfig
}

// LLMConfig configures the OpenAI-compatible model endpoint. An empty APIKey
// disables the model and every turn uses the local fallbacks.
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	ClassifierModel   string
	ReplyModel        string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	HTTPTimeout       time.Duration
}

// Enabled reports whether a model endpoint is configured.
func (c LLMConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// CoachConfig tunes the coaching pipeline.
type CoachConfig struct {
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	HistoryLimit    int
	ContextTurns    int
	StateCacheSize  int
	StateTTL        time.Duration
	Timezone        string
}

// Location resolves Timezone, defaulting to the process local zone.
func (c CoachConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("COACH_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RateLimitConfig limits chat requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RetentionConfig controls the conversation pruning worker.
type RetentionConfig struct {
	Interval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/coach.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		LLM: LLMConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ClassifierModel:   getEnv("OPENAI_CLASSIFIER_MODEL", "gpt-4o-mini"),
			ReplyModel:        getEnv("OPENAI_REPLY_MODEL", "gpt-4o"),
			RequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 2),
			Burst:             getEnvInt("LLM_BURST", 4),
			MaxRetries:        getEnvInt("LLM_MAX_RETRIES", 2),
			HTTPTimeout:       getEnvDuration("LLM_HTTP_TIMEOUT", 60*time.Second),
		},
		Coach: CoachConfig{
			ClassifyTimeout: getEnvDuration("COACH_CLASSIFY_TIMEOUT", 15*time.Second),
			GenerateTimeout: getEnvDuration("COACH_GENERATE_TIMEOUT", 30*time.Second),
			HistoryLimit:    getEnvInt("COACH_HISTORY_LIMIT", 50),
			ContextTurns:    getEnvInt("COACH_CONTEXT_TURNS", 6),
			StateCacheSize:  getEnvInt("COACH_STATE_CACHE_SIZE", 1024),
			StateTTL:        getEnvDuration("COACH_STATE_TTL", 30*time.Minute),
			Timezone:        getEnv("COACH_TIMEZONE", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retention: RetentionConfig{
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Coach.ClassifyTimeout <= 0 || c.Coach.GenerateTimeout <= 0 {
		return fmt.Errorf("COACH_CLASSIFY_TIMEOUT and COACH_GENERATE_TIMEOUT must be > 0")
	}
	if c.Coach.HistoryLimit <= 0 {
		return fmt.Errorf("COACH_HISTORY_LIMIT must be > 0")
	}
	if c.Coach.ContextTurns <= 0 || c.Coach.ContextTurns > c.Coach.HistoryLimit {
		return fmt.Errorf("COACH_CONTEXT_TURNS must be between 1 and COACH_HISTORY_LIMIT")
	}
	if c.Coach.StateCacheSize <= 0 {
		return fmt.Errorf("COACH_STATE_CACHE_SIZE must be > 0")
	}
	if c.Coach.StateTTL <= 0 {
		return fmt.Errorf("COACH_STATE_TTL must be > 0")
	}
	if _, err := c.Coach.Location(); err != nil {
		return err
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("LLM_REQUESTS_PER_SECOND cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
