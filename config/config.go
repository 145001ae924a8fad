package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	AccessSecret     []byte
	RefreshSecret    []byte
	RateLimitPerSec  int
	WriteTimeout     time.Duration
	OutboundQueueLen int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists; a missing file is not an error.
	_ = godotenv.Load()

	return &Config{
		Addr:             getenv("ADDR", ":8080"),
		DatabaseURL:      getenv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=converse port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getenvInt("REDIS_DB", 0),
		AccessTokenTTL:   getenvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:  getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		AccessSecret:     []byte(getenv("JWT_ACCESS_SECRET", "dev-access-secret")),
		RefreshSecret:    []byte(getenv("JWT_REFRESH_SECRET", "dev-refresh-secret")),
		RateLimitPerSec:  getenvInt("RATE_LIMIT_PER_SEC", 10),
		WriteTimeout:     getenvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		OutboundQueueLen: getenvInt("WS_OUT_QUEUE", 256),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
