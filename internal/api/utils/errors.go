// Package utils holds the small cross-cutting pieces the HTTP handlers
// share: a uniform JSON envelope, rate limiting and security-header
// middleware.
package utils

import (
	"encoding/json"
	"net/http"
)

// APIError is a handler-raised error carrying the HTTP status it maps to.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// NewAPIError builds an APIError for status with message.
func NewAPIError(message string, status int) *APIError {
	return &APIError{Status: status, Message: message}
}

// WriteError writes err as a JSON error envelope.
func WriteError(w http.ResponseWriter, err *APIError) {
	writeJSON(w, err.Status, map[string]string{
		"status":  "error",
		"message": err.Message,
	})
}

// WriteJSON writes data as a successful JSON envelope with status 200.
func WriteJSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   data,
	})
}

// WriteJSONStatus writes data as a JSON envelope under the given status.
func WriteJSONStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"status": "ok",
		"data":   data,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
