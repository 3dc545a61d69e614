package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/validation"
	"go.uber.org/zap"
)

// UserStore is the user repository surface the actions use.
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, identity string, update models.UserUpdate) (*models.User, error)
	UpdateByBillingCustomerID(ctx context.Context, customerID string, update models.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, identity string) error
}

// Provisioner resolves an identity to its user, creating the record on first sight.
type Provisioner interface {
	EnsureProvisioned(ctx context.Context, identity string, profile models.Profile) (*models.User, error)
}

// UserActions wraps the repository and reconciler with generic result messages.
type UserActions struct {
	store       UserStore
	provisioner Provisioner
	log         *zap.Logger
}

// NewUserActions creates the user actions.
func NewUserActions(store UserStore, provisioner Provisioner, log *zap.Logger) *UserActions {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserActions{store: store, provisioner: provisioner, log: log}
}

func (a *UserActions) fail(event, message string, err error, fields ...zap.Field) State {
	level := a.log.Error
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, database.ErrNotFound) ||
		errors.Is(err, database.ErrConstraintViolation) {
		level = a.log.Info
	}
	level(event, append(fields, zap.String("error", logger.SanitizeError(err)))...)
	return failure(message, err)
}

// CreateUser is the administrative create.
func (a *UserActions) CreateUser(ctx context.Context, req models.CreateUserRequest) State {
	req.Identity = validation.SanitizeText(req.Identity)
	req.Username = validation.SanitizeText(req.Username)
	req.Email = validation.SanitizeText(req.Email)
	if err := validation.Struct(req); err != nil {
		return a.fail("create_user_rejected", "Invalid user data", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	user, err := a.store.Create(ctx, req.ToUser())
	if err != nil {
		msg := "Error creating user"
		if errors.Is(err, database.ErrConstraintViolation) {
			msg = "User already exists or username is taken"
		}
		return a.fail("create_user_failed", msg, err,
			zap.String("identity", logger.SanitizeIdentity(req.Identity)))
	}
	return success("User created successfully", user)
}

// GetUserByIdentity looks up a single user.
func (a *UserActions) GetUserByIdentity(ctx context.Context, identity string) State {
	user, err := a.store.GetByIdentity(ctx, identity)
	if err != nil {
		return a.fail("get_user_failed", "Failed to get user", err,
			zap.String("identity", logger.SanitizeIdentity(identity)))
	}
	if user == nil {
		return failure("User not found", database.ErrNotFound)
	}
	return success("User retrieved successfully", user)
}

// GetUserByBillingCustomerID looks up the user linked to a billing customer.
func (a *UserActions) GetUserByBillingCustomerID(ctx context.Context, customerID string) State {
	user, err := a.store.GetByBillingCustomerID(ctx, customerID)
	if err != nil {
		return a.fail("get_user_by_billing_customer_failed", "Failed to get user", err)
	}
	if user == nil {
		return failure("User not found", database.ErrNotFound)
	}
	return success("User retrieved successfully", user)
}

// ListUsers returns every user.
func (a *UserActions) ListUsers(ctx context.Context) State {
	users, err := a.store.ListAll(ctx)
	if err != nil {
		return a.fail("list_users_failed", "Failed to get users", err)
	}
	return success("Users retrieved successfully", users)
}

// UpdateUser applies a partial update.
func (a *UserActions) UpdateUser(ctx context.Context, identity string, update models.UserUpdate) State {
	validation.SanitizeUpdate(&update)
	if err := validation.Struct(update); err != nil {
		return a.fail("update_user_rejected", "Invalid user data", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	user, err := a.store.Update(ctx, identity, update)
	if err != nil {
		return a.fail("update_user_failed", updateFailureMessage(err), err,
			zap.String("identity", logger.SanitizeIdentity(identity)))
	}
	return success("User updated successfully", user)
}

// UpdateUserByBillingCustomerID applies a partial update keyed on the billing customer.
func (a *UserActions) UpdateUserByBillingCustomerID(ctx context.Context, customerID string, update models.UserUpdate) State {
	validation.SanitizeUpdate(&update)
	if err := validation.Struct(update); err != nil {
		return a.fail("update_user_rejected", "Invalid user data", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	user, err := a.store.UpdateByBillingCustomerID(ctx, customerID, update)
	if err != nil {
		return a.fail("update_user_by_billing_customer_failed", updateFailureMessage(err), err)
	}
	return success("User updated successfully", user)
}

func updateFailureMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return "User not found"
	case errors.Is(err, database.ErrConstraintViolation):
		return "Username is already taken"
	default:
		return "Failed to update user"
	}
}

// DeleteUser removes a user; deleting a missing user succeeds.
func (a *UserActions) DeleteUser(ctx context.Context, identity string) State {
	if err := a.store.Delete(ctx, identity); err != nil {
		return a.fail("delete_user_failed", "Failed to delete user", err,
			zap.String("identity", logger.SanitizeIdentity(identity)))
	}
	return success("User deleted successfully", nil)
}

// EnsureProvisioned resolves the current identity to its user.
func (a *UserActions) EnsureProvisioned(ctx context.Context, identity string, profile models.Profile) State {
	user, err := a.provisioner.EnsureProvisioned(ctx, identity, profile)
	if err != nil {
		return a.fail("ensure_provisioned_failed", "Failed to provision user", err,
			zap.String("identity", logger.SanitizeIdentity(identity)))
	}
	return success("User provisioned successfully", user)
}
