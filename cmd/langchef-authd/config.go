package main

import "time"

// Config holds server configuration loaded from environment variables.
// REDIS_URL is optional: when empty, sessions fall back to in-memory
// stores, which is only suitable for a single instance.
type Config struct {
	Port              int           `envconfig:"PORT" default:"8080"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	UpstreamIssuerURL string        `envconfig:"UPSTREAM_ISSUER_URL" required:"true"`
	UpstreamStartURL  string        `envconfig:"UPSTREAM_START_URL"`
	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	MinPollInterval   time.Duration `envconfig:"MIN_POLL_INTERVAL" default:"5s"`
	MaxPollsPerMinute int           `envconfig:"MAX_POLLS_PER_MINUTE" default:"12"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
}
