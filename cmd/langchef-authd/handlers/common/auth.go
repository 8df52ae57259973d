package common

import (
	"context"
	"net/http"
	"strings"

	"github.com/langchef/langchef/internal/tokens"
)

type contextKey int

const claimsKey contextKey = iota

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*tokens.Claims, error)
}

// RequireAuth returns middleware that rejects requests without a valid
// bearer token and stores the verified claims on the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			claims, err := verifier.Verify(raw)
			if err != nil {
				WriteDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by RequireAuth, or nil when
// the request did not pass through it.
func ClaimsFromContext(ctx context.Context) *tokens.Claims {
	claims, _ := ctx.Value(claimsKey).(*tokens.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
