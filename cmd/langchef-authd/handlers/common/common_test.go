package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/langchef/langchef/internal/tokens"
)

func TestWriteDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteDetail(w, http.StatusBadRequest, "authorization_pending")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := ErrorResponse{Detail: "authorization_pending"}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

type stubVerifier struct {
	claims *tokens.Claims
	err    error
}

func (s *stubVerifier) Verify(string) (*tokens.Claims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   *stubVerifier
		wantStatus int
	}{
		{
			name:       "missing header",
			verifier:   &stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			header:     "Basic dXNlcjpwYXNz",
			verifier:   &stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			header:     "Bearer bad",
			verifier:   &stubVerifier{err: errors.New("boom")},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "valid token",
			header: "Bearer good",
			verifier: &stubVerifier{claims: &tokens.Claims{
				Email: "dev@example.com",
			}},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *tokens.Claims
			handler := RequireAuth(tt.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen == nil {
				t.Error("claims not propagated to handler context")
			}
			if tt.wantStatus != http.StatusOK && seen != nil {
				t.Error("handler ran despite failed auth")
			}
		})
	}
}
