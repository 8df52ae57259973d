// Command langchef-authd is the LangChef auth service. It fronts an
// AWS-SSO-shaped OIDC provider with the device authorization grant and
// issues LangChef session tokens to the web and CLI clients.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/langchef/langchef/internal/pollguard"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/upstream"
	"github.com/langchef/langchef/internal/users"
)

// Version is set by the build process
var Version = "dev"

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("service", "langchef-authd").
		Logger()

	var (
		userStore  users.Store
		guardStore pollguard.Store
	)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("parsing Redis URL")
		}
		redisClient = redis.NewClient(redisOpts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("connecting to Redis")
		}

		userStore = users.NewRedisStore(redisClient)
		guardStore = pollguard.NewRedisStore(redisClient)
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-memory stores")
		userStore = users.NewMemoryStore()
		memGuard := pollguard.NewMemoryStore()
		defer memGuard.Close()
		guardStore = memGuard
	}

	provider, err := upstream.NewOIDCProvider(upstream.OIDCConfig{
		IssuerURL: cfg.UpstreamIssuerURL,
		StartURL:  cfg.UpstreamStartURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("configuring upstream provider")
	}

	issuer, err := tokens.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("configuring token issuer")
	}

	guard := pollguard.New(guardStore, cfg.MinPollInterval, cfg.MaxPollsPerMinute)

	srv := newServer(cfg, log, provider, guard, userStore, issuer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal().Err(err).Msg("server failed")

	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutting down server")
			if err := httpServer.Close(); err != nil {
				log.Error().Err(err).Msg("closing server")
			}
		}

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("closing Redis connection")
			}
		}
	}
}
