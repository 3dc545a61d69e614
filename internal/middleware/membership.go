package middleware

import (
	"net/http"

	"github.com/benvon/membership-api/internal/request"
	"github.com/benvon/membership-api/internal/services/provisioning"
)

// RequireMembership lets only users the gate allows through. Everyone else gets 403 with
// the gate decision, which tells the client where to redirect.
func RequireMembership(gate provisioning.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := gate.Decide(request.UserFromContext(r))
			if !decision.Allowed() {
				respondErrorData(w, r, http.StatusForbidden, "Pro membership required", decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
