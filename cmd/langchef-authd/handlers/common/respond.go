// Package common holds response helpers and middleware shared by the auth
// service handlers.
package common

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the service's error envelope: a single detail string,
// matching what the LangChef web and CLI clients parse.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// SetJSONHeaders sets the response headers for JSON endpoints. Token
// responses must not be cached per RFC 8628.
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	SetJSONHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing useful left to send.
		return
	}
}

// WriteDetail writes the error envelope with the given status and detail.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, ErrorResponse{Detail: detail})
}
