package handlers

import (
	"net/http"

	"github.com/benvon/membership-api/internal/actions"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/request"
	"github.com/benvon/membership-api/internal/services/oidc"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AuthHandler serves the login configuration and the caller's own user record.
type AuthHandler struct {
	oidcProvider *oidc.Provider
	providerName string
	users        *actions.UserActions
	gate         provisioning.Gate
	log          *zap.Logger
}

// NewAuthHandler creates a new auth handler. oidcProvider may be nil when another
// identity provider is configured.
func NewAuthHandler(oidcProvider *oidc.Provider, providerName string, users *actions.UserActions, gate provisioning.Gate, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{oidcProvider: oidcProvider, providerName: providerName, users: users, gate: gate, log: log}
}

// RegisterPublicRoutes registers routes that need no token. The router should already
// have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods(http.MethodGet)
}

// RegisterRoutes registers the authenticated /me routes.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
	r.HandleFunc("/me", h.UpdateMe).Methods(http.MethodPatch)
	r.HandleFunc("/me", h.DeleteMe).Methods(http.MethodDelete)
	r.HandleFunc("/me/access", h.GetAccess).Methods(http.MethodGet)
}

// GetOIDCLogin returns OIDC configuration for frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidcProvider == nil {
		respondJSONError(w, http.StatusNotFound, "OIDC login is not enabled")
		return
	}
	loginConfig, err := h.oidcProvider.GetLoginConfig(r.Context(), h.providerName)
	if err != nil {
		h.log.Error("failed_to_get_oidc_login_config", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Failed to get OIDC configuration")
		return
	}
	respondJSON(w, http.StatusOK, "OIDC configuration retrieved successfully", loginConfig)
}

// GetMe returns the caller's user record, provisioned by the auth middleware.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, "User retrieved successfully", user)
}

// profileUpdate is the subset of user attributes users may change themselves.
type profileUpdate struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

// UpdateMe changes the caller's email or username. Membership, status and billing links
// are not accepted here.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var body profileUpdate
	if err := decodeJSON(r, &body); err != nil {
		respondDecodeError(w, err)
		return
	}
	update := models.UserUpdate{Email: body.Email, Username: body.Username}
	if update.IsEmpty() {
		respondJSONError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	respondState(w, h.users.UpdateUser(r.Context(), user.Identity, update), 0)
}

// DeleteMe removes the caller's record. The next authenticated request provisions a
// fresh one.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondState(w, h.users.DeleteUser(r.Context(), user.Identity), 0)
}

// GetAccess reports whether the caller may see pro content and where to go otherwise.
func (h *AuthHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, "Access decided", h.gate.Decide(request.UserFromContext(r)))
}
