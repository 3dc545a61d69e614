package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errDriver = errors.New(`pq: relation "users" does not exist`)

func TestUserActions_CreateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		store := &mockUserStore{}
		created := &models.User{Identity: "u1", Username: "alice", Membership: models.MembershipFree}
		store.On("Create", ctx, mock.MatchedBy(func(u *models.User) bool {
			return u.Identity == "u1" && u.Username == "alice" && u.Email == "a@x.com"
		})).Return(created, nil)

		state := NewUserActions(store, nil, nil).CreateUser(ctx, models.CreateUserRequest{
			Identity: " u1 ", Username: "alice", Email: "a@x.com",
		})
		require.True(t, state.OK())
		assert.Equal(t, "User created successfully", state.Message)
		assert.Same(t, created, state.Data)
		store.AssertExpectations(t)
	})

	t.Run("invalid input never reaches storage", func(t *testing.T) {
		t.Parallel()
		store := &mockUserStore{}
		state := NewUserActions(store, nil, nil).CreateUser(ctx, models.CreateUserRequest{
			Identity: "u1", Username: "alice", Membership: "gold",
		})
		assert.False(t, state.OK())
		assert.Equal(t, http.StatusBadRequest, state.HTTPStatus())
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("constraint violation", func(t *testing.T) {
		t.Parallel()
		store := &mockUserStore{}
		store.On("Create", ctx, mock.Anything).
			Return(nil, &database.ConstraintError{Op: "create user", Constraint: "users_username_key"})
		state := NewUserActions(store, nil, nil).CreateUser(ctx, models.CreateUserRequest{Identity: "u2", Username: "alice"})
		assert.Equal(t, StatusError, state.Status)
		assert.Equal(t, http.StatusConflict, state.HTTPStatus())
		assert.Nil(t, state.Data)
	})
}

func TestUserActions_GetUserByIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &mockUserStore{}
	store.On("GetByIdentity", ctx, "u1").Return(&models.User{Identity: "u1"}, nil)
	store.On("GetByIdentity", ctx, "missing").Return(nil, nil)
	store.On("GetByIdentity", ctx, "broken").Return(nil, errDriver)
	a := NewUserActions(store, nil, nil)

	assert.True(t, a.GetUserByIdentity(ctx, "u1").OK())

	missing := a.GetUserByIdentity(ctx, "missing")
	assert.Equal(t, "User not found", missing.Message)
	assert.Equal(t, http.StatusNotFound, missing.HTTPStatus())

	broken := a.GetUserByIdentity(ctx, "broken")
	assert.Equal(t, "Failed to get user", broken.Message)
	assert.Equal(t, http.StatusInternalServerError, broken.HTTPStatus())
}

func TestUserActions_GetUserByBillingCustomerID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &mockUserStore{}
	store.On("GetByBillingCustomerID", ctx, "cus_1").Return(&models.User{Identity: "u1"}, nil)
	store.On("GetByBillingCustomerID", ctx, "cus_2").Return(nil, nil)
	a := NewUserActions(store, nil, nil)

	assert.True(t, a.GetUserByBillingCustomerID(ctx, "cus_1").OK())
	assert.Equal(t, http.StatusNotFound, a.GetUserByBillingCustomerID(ctx, "cus_2").HTTPStatus())
}

func TestUserActions_ListUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &mockUserStore{}
	store.On("ListAll", ctx).Return([]*models.User{{Identity: "u1"}, {Identity: "u2"}}, nil).Once()
	store.On("ListAll", ctx).Return(nil, errDriver).Once()
	a := NewUserActions(store, nil, nil)

	ok := a.ListUsers(ctx)
	require.True(t, ok.OK())
	assert.Len(t, ok.Data, 2)

	failed := a.ListUsers(ctx)
	assert.Equal(t, "Failed to get users", failed.Message)
}

func TestUserActions_UpdateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pro := models.MembershipPro

	store := &mockUserStore{}
	store.On("Update", ctx, "u1", models.UserUpdate{Membership: &pro}).
		Return(&models.User{Identity: "u1", Membership: pro}, nil)
	store.On("Update", ctx, "missing", mock.Anything).Return(nil, database.ErrNotFound)
	a := NewUserActions(store, nil, nil)

	ok := a.UpdateUser(ctx, "u1", models.UserUpdate{Membership: &pro})
	require.True(t, ok.OK())
	assert.Equal(t, "User updated successfully", ok.Message)

	missing := a.UpdateUser(ctx, "missing", models.UserUpdate{Membership: &pro})
	assert.Equal(t, "User not found", missing.Message)
	assert.Equal(t, http.StatusNotFound, missing.HTTPStatus())

	bad := models.UserStatus("zombie")
	rejected := a.UpdateUser(ctx, "u1", models.UserUpdate{Status: &bad})
	assert.Equal(t, http.StatusBadRequest, rejected.HTTPStatus())
}

func TestUserActions_UpdateUserByBillingCustomerID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pro := models.MembershipPro
	store := &mockUserStore{}
	store.On("UpdateByBillingCustomerID", ctx, "cus_1", models.UserUpdate{Membership: &pro}).
		Return(&models.User{Identity: "u1", Membership: pro}, nil)

	state := NewUserActions(store, nil, nil).UpdateUserByBillingCustomerID(ctx, "cus_1", models.UserUpdate{Membership: &pro})
	assert.True(t, state.OK())

	raw, clean := " sub_9\x00 ", "sub_9"
	store.On("UpdateByBillingCustomerID", ctx, "cus_1", models.UserUpdate{BillingSubscriptionID: &clean}).
		Return(&models.User{Identity: "u1", BillingSubscriptionID: &clean}, nil)
	state = NewUserActions(store, nil, nil).UpdateUserByBillingCustomerID(ctx, "cus_1", models.UserUpdate{BillingSubscriptionID: &raw})
	assert.True(t, state.OK(), "subscription id is trimmed before reaching the store")
	store.AssertExpectations(t)
}

func TestUserActions_DeleteUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &mockUserStore{}
	store.On("Delete", ctx, "u1").Return(nil)
	store.On("Delete", ctx, "broken").Return(errDriver)
	a := NewUserActions(store, nil, nil)

	ok := a.DeleteUser(ctx, "u1")
	assert.True(t, ok.OK())
	assert.Nil(t, ok.Data)

	failed := a.DeleteUser(ctx, "broken")
	assert.Equal(t, "Failed to delete user", failed.Message)
}

func TestUserActions_EnsureProvisioned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := &mockProvisioner{}
	profile := models.Profile{Username: "alice"}
	p.On("EnsureProvisioned", ctx, "u1", profile).Return(&models.User{Identity: "u1", Username: "alice"}, nil)
	p.On("EnsureProvisioned", ctx, "u2", profile).Return(nil, database.ErrPersistence)
	a := NewUserActions(&mockUserStore{}, p, nil)

	assert.True(t, a.EnsureProvisioned(ctx, "u1", profile).OK())
	assert.Equal(t, "Failed to provision user", a.EnsureProvisioned(ctx, "u2", profile).Message)
}

func TestState_JSONHidesError(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(failure("Failed to get user", errDriver))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"Failed to get user"}`, string(raw))
}
