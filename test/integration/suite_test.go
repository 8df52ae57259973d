// Package integration wires the real auth service router, the real HTTP
// client and the device flow state machine against a fake identity
// provider, exercising the full sign-in path over loopback HTTP.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/account"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/device"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/registration"
	"github.com/langchef/langchef/cmd/langchef-authd/handlers/token"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/deviceauth"
	"github.com/langchef/langchef/internal/localstate"
	"github.com/langchef/langchef/internal/pollguard"
	"github.com/langchef/langchef/internal/session"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/upstream"
	"github.com/langchef/langchef/internal/users"
)

// pollOutcome scripts one token-endpoint response from the fake provider.
type pollOutcome string

const (
	outcomePending pollOutcome = "authorization_pending"
	outcomeDenied  pollOutcome = "access_denied"
	outcomeExpired pollOutcome = "expired_token"
	outcomeSuccess pollOutcome = "success"
)

// fakeIdP is an AWS-SSO-shaped identity provider backed by a script of
// poll outcomes. Once the script is exhausted it keeps answering pending.
type fakeIdP struct {
	mu      sync.Mutex
	script  []pollOutcome
	polls   int
	nextID  int
	server  *httptest.Server
	profile upstream.Profile
}

func newFakeIdP(script ...pollOutcome) *fakeIdP {
	idp := &fakeIdP{
		script: script,
		profile: upstream.Profile{
			ID:       "aws-identity-1",
			Username: "dev",
			Email:    "dev@example.com",
			Name:     "Dev Eloper",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /client/register", idp.handleRegister)
	mux.HandleFunc("POST /device_authorization", idp.handleDeviceAuth)
	mux.HandleFunc("POST /token", idp.handleToken)
	mux.HandleFunc("GET /userinfo", idp.handleUserInfo)
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	idp.server = httptest.NewServer(mux)
	return idp
}

func (f *fakeIdP) handleRegister(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"client_id":                fmt.Sprintf("client-%d", id),
		"client_secret":            fmt.Sprintf("secret-%d", id),
		"client_secret_expires_at": time.Now().Add(time.Hour).Unix(),
	})
}

func (f *fakeIdP) handleDeviceAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.Form.Get("client_id") == "" {
		http.Error(w, "missing client_id", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"device_code":               "device-code-1",
		"user_code":                 "WDJBMJHT",
		"verification_uri":          f.server.URL + "/verify",
		"verification_uri_complete": f.server.URL + "/verify?user_code=WDJB-MJHT",
		"expires_in":                600,
		"interval":                  1,
	})
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	outcome := outcomePending
	if len(f.script) > 0 {
		outcome = f.script[0]
		f.script = f.script[1:]
	}
	f.polls++
	f.mu.Unlock()

	switch outcome {
	case outcomeSuccess:
		writeJSON(w, map[string]any{
			"access_token": "upstream-access-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": string(outcome)})
	}
}

func (f *fakeIdP) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer upstream-access-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, f.profile)
}

func (f *fakeIdP) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// suite runs the full stack: fake provider, real auth service router, and
// a device flow client with an immediate timer so polls fire back to back.
type suite struct {
	idp      *fakeIdP
	authd    *httptest.Server
	users    *users.MemoryStore
	store    *localstate.MemoryStore
	sessions *session.Manager
	client   *deviceauth.Client
	urls     []string
	urlsMu   sync.Mutex
}

func newSuite(t *testing.T, script ...pollOutcome) *suite {
	t.Helper()

	s := &suite{
		idp:   newFakeIdP(script...),
		users: users.NewMemoryStore(),
	}
	t.Cleanup(s.idp.server.Close)

	provider, err := upstream.NewOIDCProvider(upstream.OIDCConfig{
		IssuerURL: s.idp.server.URL,
	})
	if err != nil {
		t.Fatalf("NewOIDCProvider: %v", err)
	}

	issuer, err := tokens.NewIssuer([]byte("integration-secret"), 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	guardStore := pollguard.NewMemoryStore()
	t.Cleanup(guardStore.Close)
	guard := pollguard.New(guardStore, time.Nanosecond, 10000)

	log := zerolog.Nop()
	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register-client", registration.New(registration.Config{
			Provider: provider,
			Logger:   log,
		}).ServeHTTP)
		r.Post("/device-authorization", device.New(device.Config{
			Provider: provider,
			Logger:   log,
		}).ServeHTTP)
		r.Post("/token", token.New(token.Config{
			Provider: provider,
			Guard:    guard,
			Users:    s.users,
			Issuer:   issuer,
			Logger:   log,
		}).ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(common.RequireAuth(issuer))
			r.Post("/refresh", account.New(account.Config{
				Users:  s.users,
				Issuer: issuer,
				Logger: log,
			}).Refresh)
			r.Get("/me", account.New(account.Config{
				Users:  s.users,
				Issuer: issuer,
				Logger: log,
			}).Me)
		})
	})
	s.authd = httptest.NewServer(router)
	t.Cleanup(s.authd.Close)

	api, err := authapi.NewClient(s.authd.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	s.store = localstate.NewMemory()
	s.sessions = session.NewManager(s.store, api)

	s.client = deviceauth.NewClient(api, s.store, s.sessions,
		deviceauth.WithLogger(log),
		deviceauth.WithStartupDelay(0),
		deviceauth.WithURLOpener(func(url string) error {
			s.urlsMu.Lock()
			defer s.urlsMu.Unlock()
			s.urls = append(s.urls, url)
			return nil
		}),
		// Fire polls almost immediately regardless of the negotiated
		// interval so the flow completes in test time.
		deviceauth.WithTimer(func(d time.Duration, fn func()) func() bool {
			timer := time.AfterFunc(time.Millisecond, fn)
			return timer.Stop
		}),
	)
	return s
}

func (s *suite) openedURLs() []string {
	s.urlsMu.Lock()
	defer s.urlsMu.Unlock()
	return append([]string(nil), s.urls...)
}
