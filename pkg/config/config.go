// Package config loads the service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	Addr           string
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string
}

// Load reads the configuration from the environment. A missing .env
// file is not an error; explicit environment variables always win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:           getenv("LOANTRACK_ADDR", ":8080"),
		DatabasePath:   getenv("LOANTRACK_DB", "loantrack.db"),
		LogLevel:       getenv("LOANTRACK_LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getenv("LOANTRACK_CORS_ORIGINS", "*")),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
