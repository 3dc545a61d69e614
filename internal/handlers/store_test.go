package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benvon/membership-api/internal/actions"
	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/gorilla/mux"
)

// memUsers is an in-memory actions.UserStore with the users table's unique keys.
type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers(seed ...models.User) *memUsers {
	s := &memUsers{users: make(map[string]models.User)}
	for _, u := range seed {
		if u.Membership == "" {
			u.Membership = models.MembershipFree
		}
		if u.Status == "" {
			u.Status = models.UserStatusActive
		}
		s.users[u.Identity] = u
	}
	return s
}

func (s *memUsers) conflict(identity, username string, customerID *string) error {
	for _, u := range s.users {
		if u.Identity == identity {
			continue
		}
		if u.Username == username {
			return &database.ConstraintError{Op: "write user", Constraint: "users_username_key"}
		}
		if customerID != nil && *customerID != "" && u.BillingCustomerID != nil && *u.BillingCustomerID == *customerID {
			return &database.ConstraintError{Op: "write user", Constraint: "users_billing_customer_id_key"}
		}
	}
	return nil
}

func (s *memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Identity]; ok {
		return nil, &database.ConstraintError{Op: "create user", Constraint: "users_pkey"}
	}
	if err := s.conflict(user.Identity, user.Username, user.BillingCustomerID); err != nil {
		return nil, err
	}
	u := *user
	if u.Membership == "" {
		u.Membership = models.MembershipFree
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.Identity] = u
	return &u, nil
}

func (s *memUsers) GetByIdentity(_ context.Context, identity string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identity]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memUsers) GetByBillingCustomerID(_ context.Context, customerID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.BillingCustomerID != nil && *u.BillingCustomerID == customerID {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *memUsers) ListAll(context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *memUsers) Update(_ context.Context, identity string, update models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identity]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s.apply(u, update)
}

func (s *memUsers) UpdateByBillingCustomerID(_ context.Context, customerID string, update models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.BillingCustomerID != nil && *u.BillingCustomerID == customerID {
			return s.apply(u, update)
		}
	}
	return nil, database.ErrNotFound
}

func (s *memUsers) apply(u models.User, update models.UserUpdate) (*models.User, error) {
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.Membership != nil {
		u.Membership = *update.Membership
	}
	if update.Status != nil {
		u.Status = *update.Status
	}
	if update.BillingCustomerID != nil {
		u.BillingCustomerID = update.BillingCustomerID
		if *update.BillingCustomerID == "" {
			u.BillingCustomerID = nil
		}
	}
	if update.BillingSubscriptionID != nil {
		u.BillingSubscriptionID = update.BillingSubscriptionID
		if *update.BillingSubscriptionID == "" {
			u.BillingSubscriptionID = nil
		}
	}
	if err := s.conflict(u.Identity, u.Username, u.BillingCustomerID); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.Identity] = u
	return &u, nil
}

func (s *memUsers) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, identity)
	return nil
}

func newTestActions(store *memUsers) *actions.UserActions {
	return actions.NewUserActions(store, provisioning.NewReconciler(store, nil), nil)
}

// newRouter mounts handlers the same way the server does, without auth middleware.
func newRouter(register func(r *mux.Router)) *mux.Router {
	r := mux.NewRouter()
	register(r)
	return r
}
