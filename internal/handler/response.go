package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WriteJSON writes data as a JSON response. The Content-Type header must be
// set before the status code is written.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // client gone, nothing left to report
}

// errorResponse is the error shape shared by every endpoint: a stable
// machine-readable code plus a human-readable message.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes the standard error response.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// WriteValidationError reports a malformed request parameter or body field
// as a 400 under the shared validation_error code.
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "validation_error", message)
}

// ParseJSON decodes the request body into v. The Content-Type must be
// application/json (parameters such as charset are tolerated) and unknown
// fields are rejected. The returned error is safe to echo to the client.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Content-Type must be application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("request body must be valid JSON")
	}

	return nil
}

// formatTime renders timestamps the way every response does.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
