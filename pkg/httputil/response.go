// Package httputil provides shared HTTP response helpers for the health
// and metrics endpoints.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteJSON writes an indented JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(data)
	}
}

// WriteText writes a plain-text response with an explicit Content-Length.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// WriteError writes a JSON error response with an error code and a
// human-readable message.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, map[string]string{
		"error":   errCode,
		"message": message,
	})
}

// WriteNotFound writes a plain 404 Not Found response.
func WriteNotFound(w http.ResponseWriter) {
	WriteText(w, http.StatusNotFound, "Not Found")
}

// WriteMethodNotAllowed writes a 405 response advertising the allowed methods.
func WriteMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
