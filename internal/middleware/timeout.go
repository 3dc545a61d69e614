package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// DefaultRequestTimeout is the default request timeout (30 seconds)
const DefaultRequestTimeout = 30 * time.Second

// Timeout cancels the request context after timeout and answers 503 if the handler has
// not written a response by then.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	body, _ := json.Marshal(ErrorResponse{Status: "error", Message: "Request timed out"})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
