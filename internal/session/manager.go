// Package session manages the authenticated LangChef session: the bearer
// token, its expiry, and the user it belongs to. The manager replaces the
// ambient default-header global of the web client with an injected value
// whose lifecycle is explicit.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/localstate"
)

// DefaultTokenTTL applies when the server omits expires_in.
const DefaultTokenTTL = 24 * time.Hour

// Manager owns the authenticated session. All methods are safe for
// concurrent use.
type Manager struct {
	store localstate.Store
	api   authapi.API
	clock func() time.Time

	mu        sync.RWMutex
	user      *authapi.User
	token     string
	expiresAt time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.clock = fn }
}

// NewManager creates a manager over the given store. Call Load to pick up a
// persisted session.
func NewManager(store localstate.Store, api authapi.API, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		api:   api,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores a persisted session from storage, if any. Missing or
// unreadable records leave the manager signed out; they are never an error
// worth failing startup over, so Load only reports storage faults.
func (m *Manager) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokenData, err := m.store.Get(localstate.KeyToken)
	if err != nil {
		return
	}
	expiryData, err := m.store.Get(localstate.KeySessionExpiry)
	if err != nil {
		return
	}
	var expiresAt time.Time
	if err := expiresAt.UnmarshalText(expiryData); err != nil {
		return
	}

	m.token = string(tokenData)
	m.expiresAt = expiresAt

	if userData, err := m.store.Get(localstate.KeyUser); err == nil {
		var user authapi.User
		if err := json.Unmarshal(userData, &user); err == nil {
			m.user = &user
		}
	}
}

// Establish installs a freshly granted session and persists it. A zero ttl
// falls back to DefaultTokenTTL.
func (m *Manager) Establish(user *authapi.User, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	expiresAt := m.clock().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	m.token = accessToken
	m.expiresAt = expiresAt
	return m.persistLocked()
}

// Clear signs out: memory and storage are wiped best-effort.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.token = ""
	m.expiresAt = time.Time{}
	_ = m.store.Delete(localstate.KeyUser)
	_ = m.store.Delete(localstate.KeyToken)
	_ = m.store.Delete(localstate.KeySessionExpiry)
}

// Refresh exchanges the current token for a new one. On failure the session
// is left untouched; deciding whether to sign out belongs to the caller.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return errors.New("no active session")
	}

	grant, err := m.api.Refresh(ctx, token)
	if err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}

	ttl := DefaultTokenTTL
	if grant.ExpiresIn > 0 {
		ttl = time.Duration(grant.ExpiresIn) * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = grant.AccessToken
	m.expiresAt = m.clock().Add(ttl)
	if grant.User != nil {
		m.user = grant.User
	}
	return m.persistLocked()
}

// Current returns the signed-in user, if any.
func (m *Manager) Current() (*authapi.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil || m.token == "" {
		return nil, false
	}
	user := *m.user
	return &user, true
}

// Token returns the current access token, empty when signed out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Expired reports whether the session is absent or past its expiry.
func (m *Manager) Expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return true
	}
	return !m.clock().Before(m.expiresAt)
}

// TimeUntilExpiry returns the remaining session lifetime, zero when signed
// out or already expired.
func (m *Manager) TimeUntilExpiry() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return 0
	}
	remaining := m.expiresAt.Sub(m.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Transport returns a RoundTripper that adds the Authorization header while
// a session is active. base nil means http.DefaultTransport.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{manager: m, base: base}
}

func (m *Manager) persistLocked() error {
	userData, err := json.Marshal(m.user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	expiryData, err := m.expiresAt.MarshalText()
	if err != nil {
		return fmt.Errorf("encoding expiry: %w", err)
	}
	if err := m.store.Put(localstate.KeyUser, userData); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}
	if err := m.store.Put(localstate.KeyToken, []byte(m.token)); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	if err := m.store.Put(localstate.KeySessionExpiry, expiryData); err != nil {
		return fmt.Errorf("persisting expiry: %w", err)
	}
	return nil
}

type authTransport struct {
	manager *Manager
	base    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if token := t.manager.Token(); token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(req)
}
