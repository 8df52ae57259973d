// Package device handles device authorization start requests.
package device

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/upstream"
)

// Fallback poll interval when the provider omits one, per RFC 8628
// section 3.2.
const defaultInterval = 5

// Handler starts the device grant at the upstream provider and relays the
// verification details to the client.
type Handler struct {
	provider upstream.Provider
	log      zerolog.Logger
	now      func() time.Time
}

// Config contains handler configuration options.
type Config struct {
	Provider upstream.Provider
	Logger   zerolog.Logger

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates a new device authorization handler.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		provider: cfg.Provider,
		log:      cfg.Logger,
		now:      now,
	}
}

type request struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ServeHTTP handles POST /api/auth/device-authorization.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		common.WriteDetail(w, http.StatusBadRequest, "client_id and client_secret are required")
		return
	}

	auth, err := h.provider.StartDeviceAuthorization(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		h.log.Error().Err(err).Msg("upstream device authorization failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to start device authorization")
		return
	}

	interval := int(auth.Interval)
	if interval <= 0 {
		interval = defaultInterval
	}
	expiresIn := int(auth.Expiry.Sub(h.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	common.WriteJSON(w, http.StatusOK, authapi.DeviceAuthorization{
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         auth.VerificationURI,
		VerificationURIComplete: auth.VerificationURIComplete,
		ExpiresIn:               expiresIn,
		Interval:                interval,
	})
}
