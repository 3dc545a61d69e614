package actions

import (
	"context"

	"github.com/benvon/membership-api/internal/models"
	"github.com/stretchr/testify/mock"
)

type mockUserStore struct {
	mock.Mock
}

func userOrNil(args mock.Arguments) *models.User {
	if u := args.Get(0); u != nil {
		return u.(*models.User)
	}
	return nil
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserStore) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	args := m.Called(ctx, identity)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserStore) GetByBillingCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	args := m.Called(ctx, customerID)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserStore) ListAll(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) Update(ctx context.Context, identity string, update models.UserUpdate) (*models.User, error) {
	args := m.Called(ctx, identity, update)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserStore) UpdateByBillingCustomerID(ctx context.Context, customerID string, update models.UserUpdate) (*models.User, error) {
	args := m.Called(ctx, customerID, update)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserStore) Delete(ctx context.Context, identity string) error {
	return m.Called(ctx, identity).Error(0)
}

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) EnsureProvisioned(ctx context.Context, identity string, profile models.Profile) (*models.User, error) {
	args := m.Called(ctx, identity, profile)
	return userOrNil(args), args.Error(1)
}
