package handlers

import (
	"net/http"

	"github.com/benvon/membership-api/internal/request"
)

// ProPlaceholder is the gated page that only pro members reach.
func ProPlaceholder(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, "Welcome to pro", map[string]string{
		"username":   user.Username,
		"membership": string(user.Membership),
	})
}
