package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Persistence
	DatabaseURL   string
	BookingStore  string // postgres, sqlite or memory
	SQLiteDSN     string
	SessionStore  string // redis, postgres or memory
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	// Generative extraction
	UseLLM              bool
	LLMProvider         string // gemini or bedrock
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	LLMTimeout          time.Duration
	LLMHistoryTurns     int

	// Clinic policy
	ClinicTimezone         string
	BusinessHours          string
	DefaultDurationMinutes int

	// Auth
	AuthJWTSecret  string
	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		BookingStore:  strings.ToLower(strings.TrimSpace(getEnv("BOOKING_STORE", "postgres"))),
		SQLiteDSN:     getEnv("SQLITE_DSN", "dentbot.db"),
		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "redis"))),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),

		UseLLM:              getEnvAsBool("USE_LLM", false),
		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),
		LLMHistoryTurns:     getEnvAsInt("LLM_HISTORY_TURNS", 5),

		ClinicTimezone:         getEnv("CLINIC_TIMEZONE", "UTC"),
		BusinessHours:          getEnv("BUSINESS_HOURS", ""),
		DefaultDurationMinutes: getEnvAsInt("DEFAULT_DURATION_MINUTES", 30),

		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// LLMConfigured reports whether the generative backend has credentials for
// the selected provider.
func (c *Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case "bedrock":
		return strings.TrimSpace(c.BedrockModelID) != ""
	default:
		return strings.TrimSpace(c.GeminiAPIKey) != ""
	}
}

// LLMModel returns the model identifier for the selected provider.
func (c *Config) LLMModel() string {
	if c.LLMProvider == "bedrock" {
		return c.BedrockModelID
	}
	return c.GeminiModel
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
