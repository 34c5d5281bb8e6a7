// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the API binary needs at startup.
type Config struct {
	// HTTP
	Addr         string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int

	// Storage
	DatabaseURL string

	// Sessions
	SessionTTL time.Duration

	// Admin API; empty disables the admin endpoints.
	AdminToken string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:         getenv("LIGHTAUTH_ADDR", ":8080"),
		MaxBodyBytes: getint64("LIGHTAUTH_MAX_BODY_BYTES", 1<<20),
		RateBurst:    getint("LIGHTAUTH_RATE_BURST", 20),
		RatePerSec:   getint("LIGHTAUTH_RATE_PER_SEC", 10),
		DatabaseURL:  os.Getenv("LIGHTAUTH_PG_DSN"),
		SessionTTL:   getdur("LIGHTAUTH_SESSION_TTL", 12*time.Hour),
		AdminToken:   os.Getenv("LIGHTAUTH_ADMIN_TOKEN"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("config: invalid integer for %s, using default %d", k, def)
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("config: invalid integer for %s, using default %d", k, def)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: invalid duration for %s, using default %s", k, def)
	}
	return def
}
