package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL         string // empty runs the service without persistence
	RedisURL            string
	JWTSecret           string
	ServerAddr          string
	LogLevel            slog.Level
	RateLimitPerMinute  int // lookups per user
	WriteLimitPerMinute int // read state changes per user
}

func Load() *Config {
	cfg, err := load(os.Getenv)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		DatabaseURL: getenv("DATABASE_URL"),
		RedisURL:    env("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getenv("JWT_SECRET"),
		ServerAddr:  env("SERVER_ADDR", ":8080"),
		LogLevel:    parseLogLevel(getenv("LOG_LEVEL")),
	}

	var err error
	if cfg.RateLimitPerMinute, err = positive("RATE_LIMIT_PER_MINUTE", env("RATE_LIMIT_PER_MINUTE", "120")); err != nil {
		return nil, err
	}
	if cfg.WriteLimitPerMinute, err = positive("WRITE_LIMIT_PER_MINUTE", env("WRITE_LIMIT_PER_MINUTE", "60")); err != nil {
		return nil, err
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func positive(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
