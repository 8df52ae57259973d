package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/users"
)

func newTestSetup(t *testing.T) (*Handler, *tokens.Issuer, *users.MemoryStore) {
	t.Helper()

	issuer, err := tokens.NewIssuer([]byte("test-secret"), 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store := users.NewMemoryStore()
	h := New(Config{
		Users:  store,
		Issuer: issuer,
		Logger: zerolog.Nop(),
	})
	return h, issuer, store
}

// authedRequest builds a request that already passed common.RequireAuth.
func authedRequest(t *testing.T, target string, issuer *tokens.Issuer, username, email string) *http.Request {
	t.Helper()

	raw, _, err := issuer.Mint(username, email, "aws-id-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, target, nil)
	r.Header.Set("Authorization", "Bearer "+raw)
	return r
}

func serveAuthed(h http.HandlerFunc, issuer *tokens.Issuer, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	common.RequireAuth(issuer)(h).ServeHTTP(w, r)
	return w
}

func TestRefresh(t *testing.T) {
	h, issuer, store := newTestSetup(t)
	if _, err := store.UpsertByEmail(context.Background(), users.User{
		Username: "dev",
		Email:    "dev@example.com",
		FullName: "Dev Eloper",
		IsActive: true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	r := authedRequest(t, "/api/auth/refresh", issuer, "dev", "dev@example.com")
	w := serveAuthed(h.Refresh, issuer, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var grant authapi.TokenGrant
	if err := json.NewDecoder(w.Body).Decode(&grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.AccessToken == "" {
		t.Error("refresh returned empty access_token")
	}
	claims, err := issuer.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify refreshed token: %v", err)
	}
	if claims.Subject != "dev" || claims.Email != "dev@example.com" {
		t.Errorf("claims = subject %q email %q", claims.Subject, claims.Email)
	}
	if grant.User == nil || grant.User.FullName != "Dev Eloper" {
		t.Errorf("grant user = %+v", grant.User)
	}
}

func TestRefreshUnknownUser(t *testing.T) {
	h, issuer, _ := newTestSetup(t)

	r := authedRequest(t, "/api/auth/refresh", issuer, "ghost", "ghost@example.com")
	w := serveAuthed(h.Refresh, issuer, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMe(t *testing.T) {
	h, issuer, store := newTestSetup(t)
	if _, err := store.UpsertByEmail(context.Background(), users.User{
		Username: "dev",
		Email:    "dev@example.com",
		FullName: "Dev Eloper",
		IsActive: true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	r := authedRequest(t, "/api/auth/me", issuer, "dev", "dev@example.com")
	w := serveAuthed(h.Me, issuer, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var user authapi.User
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	want := authapi.User{Username: "dev", Email: "dev@example.com", FullName: "Dev Eloper"}
	if user != want {
		t.Errorf("user = %+v, want %+v", user, want)
	}
}

func TestMeRejectsAnonymous(t *testing.T) {
	h, issuer, _ := newTestSetup(t)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := serveAuthed(h.Me, issuer, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
