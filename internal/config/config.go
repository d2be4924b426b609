package config

import (
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port            string
	Environment     string
	APIBaseURL      string
	StorageBaseURL  string
	DatabasePath    string
	SecretKey       string
	SessionDuration time.Duration
	APITimeout      time.Duration
	AllowedOrigins  string
	LogLevel        string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		APIBaseURL:      strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/"),
		StorageBaseURL:  withTrailingSlash(getEnv("STORAGE_BASE_URL", "http://localhost:8000/storage/")),
		DatabasePath:    getEnv("DATABASE_PATH", "wanderplan.db"),
		SecretKey:       getEnv("SECRET_KEY", "your-secret-key-change-this-in-production"),
		SessionDuration: getDuration("SESSION_DURATION", 30*24*time.Hour),
		APITimeout:      getDuration("API_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:8080"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
	}
	return cfg
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
