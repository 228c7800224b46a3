// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// Key-value store (Redis). An empty address means the store is not
	// configured: reads return empty results and rate limiting fails open.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Upstream relay (Telegram Bot API)
	BotToken string
	ChatID   string
	APIBase  string // override in tests; defaults to the public Bot API

	// Browser-facing base URL for constructed file links, e.g. "https://files.example.com".
	// Empty means derive from the incoming request.
	PublicBaseURL string

	// Operator (dashboard) credentials
	AdminUsername string
	AdminPassword string
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	return &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "development"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		BotToken: getEnv("TG_BOT_TOKEN", ""),
		ChatID:   getEnv("TG_CHAT_ID", ""),
		APIBase:  getEnv("TG_API_BASE", "https://api.telegram.org"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change_me_in_production"),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid integer for %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
