package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration required by the service.
type Config struct {
	Env          string
	Port         string
	DBURL        string
	DBMaxConns   int32
	RedisURL     string
	MetricsToken string
	NodeID       int64

	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Datadog   DatadogConfig
	Reply     ReplyConfig
	OpenAI    OpenAIConfig
	OTel      OTelConfig
}

// RateLimitConfig selects the limiter backing store and its window.
type RateLimitConfig struct {
	Backend string // "memory" or "redis"
	Max     int
	Window  time.Duration
}

// WebhookConfig holds process-webhook settings.
// An empty Secret disables signature validation for the endpoint.
type WebhookConfig struct {
	Secret       string
	MaxBodyBytes int64
}

// DatadogConfig holds the shared secret Datadog signs alerts with.
type DatadogConfig struct {
	Secret string
}

// ReplyConfig configures the completion backend used to answer customers.
type ReplyConfig struct {
	Backend string // "gateway" or "openai"
	URL     string
	APIKey  string
	Timeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"

	ReplyGateway = "gateway"
	ReplyOpenAI  = "openai"

	defaultMaxBodyBytes = 256 * 1024
)

// Load reads values from environment variables.
// In development a local .env file is loaded first when present.
func Load() (Config, error) {
	if getEnv("APP_ENV", "development") == "development" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Env:          getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		DBURL:        getEnv("DB_URL", ""),
		DBMaxConns:   int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisURL:     getEnv("REDIS_URL", ""),
		MetricsToken: getEnv("METRICS_TOKEN", ""),
		NodeID:       int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		RateLimit: RateLimitConfig{
			Backend: strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitMemory)),
			Max:     getEnvInt("RATE_LIMIT_MAX", 60),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Webhook: WebhookConfig{
			Secret:       getEnv("WEBHOOK_SECRET", ""),
			MaxBodyBytes: defaultMaxBodyBytes,
		},
		Datadog: DatadogConfig{
			Secret: getEnv("DATADOG_WEBHOOK_SECRET", ""),
		},
		Reply: ReplyConfig{
			Backend: strings.ToLower(getEnv("REPLY_BACKEND", ReplyGateway)),
			URL:     getEnv("REPLY_URL", getEnv("BEAUTY_ASSISTANT_URL", "")),
			APIKey:  getEnv("REPLY_API_KEY", getEnv("SUPABASE_ANON_KEY", "")),
			Timeout: getEnvDuration("REPLY_TIMEOUT", 60*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "google/gemini-2.5-flash"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "webhook-service"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	// The completion backend historically lived next to the database as an edge function.
	if cfg.Reply.URL == "" {
		if base := getEnv("SUPABASE_URL", ""); base != "" {
			cfg.Reply.URL = strings.TrimRight(base, "/") + "/functions/v1/beauty-assistant"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf(`RATE_LIMIT_BACKEND must be "memory" or "redis", got %q`, c.RateLimit.Backend)
	}

	if c.RateLimit.Max <= 0 {
		return errors.New("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}

	switch c.Reply.Backend {
	case ReplyGateway, ReplyOpenAI:
	default:
		return fmt.Errorf(`REPLY_BACKEND must be "gateway" or "openai", got %q`, c.Reply.Backend)
	}

	if c.NodeID < 0 || c.NodeID > 1023 {
		return errors.New("SNOWFLAKE_NODE must be between 0 and 1023")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesMemoryStore reports whether the service runs without Postgres.
func (c Config) UsesMemoryStore() bool {
	return c.DBURL == ""
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
