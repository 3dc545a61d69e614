package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize caps request bodies when no limit is configured.
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize limits request bodies to maxBytes. Requests that declare a larger
// Content-Length are refused up front; chunked bodies fail with *http.MaxBytesError
// once handlers read past the limit.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	limit := maxBytes
	if limit <= 0 {
		limit = DefaultMaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				respondError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
