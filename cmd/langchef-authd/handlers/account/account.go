// Package account handles authenticated session endpoints: token refresh
// and the current-user lookup.
package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/users"
)

// Handler serves requests that require an established session. Requests
// reach it through common.RequireAuth, so verified claims are always on
// the context.
type Handler struct {
	users  users.Store
	issuer *tokens.Issuer
	log    zerolog.Logger
	now    func() time.Time
}

// Config contains handler configuration options.
type Config struct {
	Users  users.Store
	Issuer *tokens.Issuer
	Logger zerolog.Logger

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates a new account handler.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		users:  cfg.Users,
		issuer: cfg.Issuer,
		log:    cfg.Logger,
		now:    now,
	}
}

// Refresh handles POST /api/auth/refresh. It mints a replacement token for
// the authenticated user, restarting the session clock.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	user, err := h.lookup(w, r, claims.Subject)
	if err != nil {
		return
	}

	accessToken, expiresAt, err := h.issuer.Mint(user.Username, user.Email, user.AWSIdentityID)
	if err != nil {
		h.log.Error().Err(err).Msg("minting refresh token failed")
		common.WriteDetail(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	common.WriteJSON(w, http.StatusOK, authapi.TokenGrant{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(expiresAt.Sub(h.now()).Seconds()),
		User: &authapi.User{
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
		},
	})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	user, err := h.lookup(w, r, claims.Subject)
	if err != nil {
		return
	}

	common.WriteJSON(w, http.StatusOK, authapi.User{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	})
}

// lookup fetches the claims' user, writing the error response itself when
// the record is missing or the store fails.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, username string) (*users.User, error) {
	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			common.WriteDetail(w, http.StatusUnauthorized, "User not found")
			return nil, err
		}
		h.log.Error().Err(err).Str("username", username).Msg("user lookup failed")
		common.WriteDetail(w, http.StatusInternalServerError, "Failed to load user")
		return nil, err
	}
	return user, nil
}
