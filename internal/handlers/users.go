package handlers

import (
	"net/http"

	"github.com/benvon/membership-api/internal/actions"
	"github.com/benvon/membership-api/internal/models"
	"github.com/gorilla/mux"
)

// UserHandler exposes administrative user management.
type UserHandler struct {
	users *actions.UserActions
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *actions.UserActions) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes registers user routes. The router should already have the
// /api/v1/users prefix and the admin guard.
func (h *UserHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/billing/{customerId}", h.GetUserByBillingCustomerID).Methods(http.MethodGet)
	r.HandleFunc("/{identity}", h.GetUser).Methods(http.MethodGet)
	r.HandleFunc("/{identity}", h.UpdateUser).Methods(http.MethodPatch)
	r.HandleFunc("/{identity}", h.DeleteUser).Methods(http.MethodDelete)
}

// ListUsers returns every user.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	respondState(w, h.users.ListUsers(r.Context()), 0)
}

// CreateUser creates a user from an administrative request.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	respondState(w, h.users.CreateUser(r.Context(), req), http.StatusCreated)
}

// GetUser returns the user with the identity in the path.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	respondState(w, h.users.GetUserByIdentity(r.Context(), mux.Vars(r)["identity"]), 0)
}

// GetUserByBillingCustomerID returns the user linked to a billing customer.
func (h *UserHandler) GetUserByBillingCustomerID(w http.ResponseWriter, r *http.Request) {
	respondState(w, h.users.GetUserByBillingCustomerID(r.Context(), mux.Vars(r)["customerId"]), 0)
}

// UpdateUser applies a partial update, including membership and status.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var update models.UserUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondDecodeError(w, err)
		return
	}
	respondState(w, h.users.UpdateUser(r.Context(), mux.Vars(r)["identity"], update), 0)
}

// DeleteUser removes a user. Deleting an unknown identity succeeds.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	respondState(w, h.users.DeleteUser(r.Context(), mux.Vars(r)["identity"]), 0)
}
