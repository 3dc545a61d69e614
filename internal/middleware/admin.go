package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminToken guards administrative routes with a static bearer token. An empty token
// disables the routes.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondError(w, r, http.StatusForbidden, "Admin API is disabled")
				return
			}
			presented, msg := bearerToken(r)
			if msg != "" {
				respondError(w, r, http.StatusUnauthorized, msg)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, r, http.StatusUnauthorized, "Invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
