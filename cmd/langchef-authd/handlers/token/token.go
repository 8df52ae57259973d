// Package token handles device token polling requests.
package token

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/pollguard"
	"github.com/langchef/langchef/internal/tokens"
	"github.com/langchef/langchef/internal/upstream"
	"github.com/langchef/langchef/internal/users"
)

// Handler performs a single token attempt against the upstream provider
// per client poll, provisioning the user and minting a LangChef token on
// success. It never waits for the user; pending conditions are relayed so
// the client owns the polling cadence.
type Handler struct {
	provider upstream.Provider
	guard    *pollguard.Guard
	users    users.Store
	issuer   *tokens.Issuer
	log      zerolog.Logger
	now      func() time.Time
}

// Config contains handler configuration options.
type Config struct {
	Provider upstream.Provider
	Guard    *pollguard.Guard
	Users    users.Store
	Issuer   *tokens.Issuer
	Logger   zerolog.Logger

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates a new token polling handler.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		provider: cfg.Provider,
		guard:    cfg.Guard,
		users:    cfg.Users,
		issuer:   cfg.Issuer,
		log:      cfg.Logger,
		now:      now,
	}
}

type request struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	DeviceCode   string `json:"device_code"`
}

// ServeHTTP handles POST /api/auth/token.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DeviceCode == "" {
		common.WriteDetail(w, http.StatusBadRequest, "device_code is required")
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		common.WriteDetail(w, http.StatusBadRequest, "client_id and client_secret are required")
		return
	}

	allowed, err := h.guard.Allow(r.Context(), req.DeviceCode)
	if err != nil {
		h.log.Error().Err(err).Msg("poll guard check failed")
		// Fail open: guard store trouble must not block logins.
		allowed = true
	}
	if !allowed {
		common.WriteDetail(w, http.StatusTooManyRequests, string(authapi.ErrorCodeSlowDown))
		return
	}

	upstreamToken, err := h.provider.CreateToken(r.Context(), req.ClientID, req.ClientSecret, req.DeviceCode)
	if err != nil {
		h.writeTokenError(w, err)
		return
	}

	profile, err := h.provider.Profile(r.Context(), upstreamToken.AccessToken)
	if err != nil {
		h.log.Error().Err(err).Msg("fetching user profile failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to create token")
		return
	}

	user, err := h.users.UpsertByEmail(r.Context(), users.User{
		Username:      profile.Username,
		Email:         profile.Email,
		FullName:      profile.Name,
		AWSIdentityID: profile.ID,
		IsActive:      true,
		LastLoginAt:   h.now(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("user upsert failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to create token")
		return
	}

	accessToken, expiresAt, err := h.issuer.Mint(user.Username, user.Email, user.AWSIdentityID)
	if err != nil {
		h.log.Error().Err(err).Msg("minting token failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to create token")
		return
	}

	h.log.Info().Str("username", user.Username).Msg("device authorization completed")
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

// writeTokenError maps upstream token outcomes onto the wire, keeping the
// detail strings the clients classify on.
func (h *Handler) writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upstream.ErrAuthorizationPending):
		common.WriteDetail(w, http.StatusBadRequest, string(authapi.ErrorCodeAuthorizationPending))
	case errors.Is(err, upstream.ErrSlowDown):
		common.WriteDetail(w, http.StatusTooManyRequests, string(authapi.ErrorCodeSlowDown))
	case errors.Is(err, upstream.ErrExpiredToken):
		common.WriteDetail(w, http.StatusBadRequest, string(authapi.ErrorCodeExpiredToken))
	case errors.Is(err, upstream.ErrAccessDenied):
		common.WriteDetail(w, http.StatusBadRequest, string(authapi.ErrorCodeAccessDenied))
	default:
		h.log.Error().Err(err).Msg("upstream token request failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to create token")
	}
}
