// Package health handles health check requests.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Check verifies one dependency is reachable.
type Check func(ctx context.Context) error

// Handler processes health check requests.
type Handler struct {
	checks  map[string]Check
	version string
}

// Response is the health check response body.
type Response struct {
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// New creates a new health check handler over the given dependency checks.
func New(checks map[string]Check) *Handler {
	return &Handler{
		checks:  checks,
		version: "unknown",
	}
}

// WithVersion sets the version for health check responses.
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// ServeHTTP handles health check requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]any),
	}

	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			response.Status = "unhealthy"
			response.Details[name] = map[string]any{
				"status":  "unhealthy",
				"message": err.Error(),
			}
			continue
		}
		response.Details[name] = map[string]any{
			"status": "healthy",
		}
	}

	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, `{"detail":"Error encoding response"}`, http.StatusInternalServerError)
		return
	}
}
