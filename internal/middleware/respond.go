package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the envelope written for requests rejected by middleware. It has the
// same shape as handler responses.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondErrorData(w, r, status, message, nil)
}

func respondErrorData(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Status:    "error",
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
