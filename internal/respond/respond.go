// Package respond writes the JSON envelope shared by every HTTP endpoint.
package respond

import (
	"encoding/json"
	"net/http"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// Success writes a 200 envelope carrying data.
func Success(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: message, Data: data})
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, message string, details ...string) {
	JSON(w, status, Envelope{Status: StatusError, Message: message, Errors: details})
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, http.StatusNotFound, "Route "+r.URL.RequestURI()+" not found")
}
