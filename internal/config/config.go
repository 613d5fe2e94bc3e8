package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the API server
type Config struct {
	// Server
	Port        string
	CORSOrigins []string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret       string
	TokenTTL        time.Duration
	LoginRatePerMin int

	// Logging
	LogLevel  string
	LogFormat string

	// Redis (optional, shared badge cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RabbitMQ (optional, moderation events)
	AMQPURL      string
	AMQPExchange string

	// SMTP (optional)
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Domain tuning
	BadgeCacheTTL    time.Duration
	ClusterMetric    string
	MapDefaultRadius float64 // km
	MapMaxRadius     float64 // km
	MapDefaultLimit  int
	MapMaxLimit      int

	// Seed
	SeedAdminEmail    string
	SeedAdminPassword string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getListEnv("CORS_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=reportaciudad port=5432 sslmode=disable TimeZone=America/Bogota"),

		JWTSecret:       getEnv("JWT_SECRET", "secret_key_change_me"),
		TokenTTL:        getDurationEnv("TOKEN_TTL", 24*time.Hour),
		LoginRatePerMin: getIntEnv("LOGIN_RATE_PER_MIN", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "reportaciudad.moderation"),

		SMTPHost: getEnv("SMTP_HOST", ""),
		SMTPPort: getEnv("SMTP_PORT", ""),
		SMTPUser: getEnv("SMTP_USER", ""),
		SMTPPass: getEnv("SMTP_PASS", ""),
		SMTPFrom: getEnv("SMTP_FROM", ""),

		BadgeCacheTTL:    getDurationEnv("BADGE_CACHE_TTL", 30*time.Second),
		ClusterMetric:    getEnv("CLUSTER_METRIC", "planar"),
		MapDefaultRadius: getFloatEnv("MAP_DEFAULT_RADIUS_KM", 5),
		MapMaxRadius:     getFloatEnv("MAP_MAX_RADIUS_KM", 50),
		MapDefaultLimit:  getIntEnv("MAP_DEFAULT_LIMIT", 100),
		MapMaxLimit:      getIntEnv("MAP_MAX_LIMIT", 500),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}
}

// MailEnabled reports whether every SMTP setting is present.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPFrom != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping empty items
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
