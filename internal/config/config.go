// Package config loads runtime configuration from environment
// variables.  A .env file in the working directory is honored when
// present so local development does not need exported variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable; every value has a default so
// the binaries start with no environment at all.
type Config struct {
	Env            string        // application environment ("dev" or "prod")
	APIBaseURL     string        // base URL of the ticketing backend
	SessionToken   string        // optional pre-issued session JWT
	HoldTTL        int           // fallback hold TTL in seconds
	StreamBaseWait time.Duration // base delay for stream reconnect backoff
	StreamMaxWait  time.Duration // ceiling for stream reconnect backoff
	StreamRetries  int           // reconnect attempts before giving up
	SimPort        string        // port the simulator listens on
	RedisAddr      string        // optional redis address for the simulator hold store
	RedisPassword  string        // optional redis password
}

// Load reads configuration from the environment, after loading .env if
// one exists.  Missing variables fall back to defaults suitable for
// local development against the simulator.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:            getEnv("APP_ENV", "dev"),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8880"),
		SessionToken:   os.Getenv("SESSION_TOKEN"),
		HoldTTL:        getInt("HOLD_TTL_SECONDS", 600),
		StreamBaseWait: getDuration("STREAM_BASE_WAIT", time.Second),
		StreamMaxWait:  getDuration("STREAM_MAX_WAIT", 30*time.Second),
		StreamRetries:  getInt("STREAM_MAX_RETRIES", 5),
		SimPort:        getEnv("SIM_PORT", "8880"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
	}
}

// getEnv retrieves an environment variable or returns the fallback
// when it is unset or empty.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getInt is like getEnv but converts the value to an integer.  Values
// that do not parse fall back as if unset.
func getInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// getDuration is like getEnv but parses a time.Duration such as "2s"
// or "500ms".
func getDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
