package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config carries all runtime settings resolved from the environment.
type Config struct {
	HTTPAddr string

	PostgresDSN string
	RedisAddr   string

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SessionTTL    time.Duration
	SweepInterval time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid int for %s, using default: %v", key, err)
		return def
	}
	return i
}

func getDuration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid duration for %s, using default: %v", key, err)
		return def
	}
	return d
}

// Load reads configuration from the environment, applying defaults for
// anything unset. The JWT secret has no default and must be provided.
func Load() Config {
	return Config{
		HTTPAddr:           getenv("USERS_HTTP_ADDR", ":8080"),
		PostgresDSN:        getenv("USERS_PG_DSN", ""),
		RedisAddr:          getenv("USERS_REDIS_ADDR", ""),
		JWTSecret:          getenv("USERS_AUTH_SECRET", ""),
		Issuer:             getenv("USERS_JWT_ISSUER", "bazario-users"),
		AccessTTL:          getDuration("USERS_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:         getDuration("USERS_REFRESH_TTL", 7*24*time.Hour),
		SessionTTL:         getDuration("USERS_SESSION_TTL", 7*24*time.Hour),
		SweepInterval:      getDuration("USERS_SWEEP_INTERVAL", 15*time.Minute),
		LockoutThreshold:   getInt("USERS_LOCKOUT_THRESHOLD", 5),
		LockoutDuration:    getDuration("USERS_LOCKOUT_DURATION", 30*time.Minute),
		RateLimitPerSecond: getInt("USERS_RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getInt("USERS_RATE_LIMIT_BURST", 40),
	}
}
