package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/account"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/device"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/health"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/registration"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/token"
	"github.com/langchef/langchef/internal/pollguard"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/upstream"
	"github.com/langchef/langchef/internal/users"
)

type server struct {
	cfg    Config
	log    zerolog.Logger
	router *chi.Mux
}

func newServer(cfg Config, log zerolog.Logger, provider upstream.Provider, guard *pollguard.Guard, userStore users.Store, issuer *tokens.Issuer) *server {
	srv := &server{
		cfg:    cfg,
		log:    log,
		router: chi.NewRouter(),
	}

	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(middleware.Timeout(30 * time.Second))
	srv.router.Use(requestLogger(log))

	healthHandler := health.New(map[string]health.Check{
		"upstream": provider.CheckHealth,
		"users":    userStore.CheckHealth,
		"polling":  guard.CheckHealth,
	}).WithVersion(Version)

	registrationHandler := registration.New(registration.Config{
		Provider: provider,
		Logger:   log,
	})
	deviceHandler := device.New(device.Config{
		Provider: provider,
		Logger:   log,
	})
	tokenHandler := token.New(token.Config{
		Provider: provider,
		Guard:    guard,
		Users:    userStore,
		Issuer:   issuer,
		Logger:   log,
	})
	accountHandler := account.New(account.Config{
		Users:  userStore,
		Issuer: issuer,
		Logger: log,
	})

	srv.router.Get("/health", healthHandler.ServeHTTP)

	srv.router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register-client", registrationHandler.ServeHTTP)
		r.Post("/device-authorization", deviceHandler.ServeHTTP)
		r.Post("/token", tokenHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(common.RequireAuth(issuer))
			r.Post("/refresh", accountHandler.Refresh)
			r.Get("/me", accountHandler.Me)
		})
	})

	return srv
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
