// Package registration handles dynamic client registration requests.
package registration

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/cmd/langchef-authd/handlers/common"
	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/upstream"
)

// Handler registers a fresh OAuth client at the upstream provider on behalf
// of a LangChef client instance.
type Handler struct {
	provider upstream.Provider
	log      zerolog.Logger
}

// Config contains handler configuration options.
type Config struct {
	Provider upstream.Provider
	Logger   zerolog.Logger
}

// New creates a new client registration handler.
func New(cfg Config) *Handler {
	return &Handler{
		provider: cfg.Provider,
		log:      cfg.Logger,
	}
}

// ServeHTTP handles POST /api/auth/register-client.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reg, err := h.provider.RegisterClient(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("upstream client registration failed")
		common.WriteDetail(w, http.StatusBadRequest, "Failed to register with AWS SSO")
		return
	}

	common.WriteJSON(w, http.StatusOK, authapi.ClientCredentials{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
	})
}
