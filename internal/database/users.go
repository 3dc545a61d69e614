package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/membership-api/internal/invalidation"
	"github.com/benvon/membership-api/internal/models"
	"go.uber.org/zap"
)

const userColumns = `identity, email, username, membership, status, billing_customer_id,
		billing_subscription_id, created_at, updated_at`

// Queryer is the subset of *sqlx.DB the repositories need. *sqlx.Tx satisfies it too.
type Queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UserRepository handles user database operations
type UserRepository struct {
	db       Queryer
	notifier invalidation.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// UserRepositoryOption configures a UserRepository.
type UserRepositoryOption func(*UserRepository)

// WithNotifier sets the notifier told about every successful write.
func WithNotifier(n invalidation.Notifier) UserRepositoryOption {
	return func(r *UserRepository) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) UserRepositoryOption {
	return func(r *UserRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for non-fatal problems such as failed notifications.
func WithLogger(log *zap.Logger) UserRepositoryOption {
	return func(r *UserRepository) {
		if log != nil {
			r.log = log
		}
	}
}

// NewUserRepository creates a new user repository
func NewUserRepository(db Queryer, opts ...UserRepositoryOption) *UserRepository {
	r := &UserRepository{
		db:       db,
		notifier: invalidation.Nop,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timestamp returns the current time at the precision PostgreSQL stores.
func (r *UserRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create inserts a new user. Membership and status default to free and active.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const op = "create user"
	if user == nil || strings.TrimSpace(user.Identity) == "" {
		return nil, constraintf(op, "users_identity_required")
	}
	if strings.TrimSpace(user.Username) == "" {
		return nil, constraintf(op, "users_username_required")
	}
	membership := user.Membership
	if membership == "" {
		membership = models.MembershipFree
	}
	if !membership.IsValid() {
		return nil, constraintf(op, "users_membership_check")
	}
	status := user.Status
	if status == "" {
		status = models.UserStatusActive
	}
	if !status.IsValid() {
		return nil, constraintf(op, "users_status_check")
	}

	query := `
		INSERT INTO users (identity, email, username, membership, status, billing_customer_id,
			billing_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + userColumns

	now := r.timestamp()
	created := &models.User{}
	err := r.db.GetContext(ctx, created, query,
		user.Identity,
		user.Email,
		user.Username,
		membership,
		status,
		nullIfEmpty(user.BillingCustomerID),
		nullIfEmpty(user.BillingSubscriptionID),
		now,
	)
	if err != nil {
		return nil, classify(op, err)
	}

	r.notify(ctx, created.Identity, invalidation.ReasonCreated)
	return created, nil
}

// GetByIdentity retrieves a user by identity. It returns nil, nil when no record exists.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	return r.getBy(ctx, "identity", identity, "get user")
}

// GetByBillingCustomerID retrieves a user by billing customer id. It returns nil, nil when no
// record exists.
func (r *UserRepository) GetByBillingCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.getBy(ctx, "billing_customer_id", customerID, "get user by billing customer id")
}

func (r *UserRepository) getBy(ctx context.Context, column, value, op string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	err := r.db.GetContext(ctx, user, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return user, nil
}

// ListAll returns every user. Callers must not depend on the order.
func (r *UserRepository) ListAll(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, identity`
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

// Update applies the provided attributes to the user with identity and refreshes updated_at.
// It returns ErrNotFound when no such user exists.
func (r *UserRepository) Update(ctx context.Context, identity string, update models.UserUpdate) (*models.User, error) {
	return r.updateBy(ctx, "identity", identity, update, "update user")
}

// UpdateByBillingCustomerID applies update to the user linked to customerID.
// It returns ErrNotFound when no user carries that billing customer id.
func (r *UserRepository) UpdateByBillingCustomerID(ctx context.Context, customerID string, update models.UserUpdate) (*models.User, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return r.updateBy(ctx, "billing_customer_id", customerID, update, "update user by billing customer id")
}

func (r *UserRepository) updateBy(ctx context.Context, column, key string, update models.UserUpdate, op string) (*models.User, error) {
	if update.Username != nil && strings.TrimSpace(*update.Username) == "" {
		return nil, constraintf(op, "users_username_required")
	}
	if update.Membership != nil && !update.Membership.IsValid() {
		return nil, constraintf(op, "users_membership_check")
	}
	if update.Status != nil && !update.Status.IsValid() {
		return nil, constraintf(op, "users_status_check")
	}

	var sets []string
	var args []any
	set := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if update.Email != nil {
		set("email", *update.Email)
	}
	if update.Username != nil {
		set("username", *update.Username)
	}
	if update.Membership != nil {
		set("membership", *update.Membership)
	}
	if update.Status != nil {
		set("status", *update.Status)
	}
	if update.BillingCustomerID != nil {
		set("billing_customer_id", nullIfEmpty(update.BillingCustomerID))
	}
	if update.BillingSubscriptionID != nil {
		set("billing_subscription_id", nullIfEmpty(update.BillingSubscriptionID))
	}
	args = append(args, r.timestamp())
	sets = append(sets, fmt.Sprintf("updated_at = GREATEST($%d, created_at)", len(args)))
	args = append(args, key)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE %s = $%d RETURNING %s`,
		strings.Join(sets, ", "), column, len(args), userColumns)

	updated := &models.User{}
	err := r.db.GetContext(ctx, updated, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}

	r.notify(ctx, updated.Identity, invalidation.ReasonUpdated)
	return updated, nil
}

// Delete removes the user with identity. Deleting a missing user is not an error.
func (r *UserRepository) Delete(ctx context.Context, identity string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE identity = $1`, identity); err != nil {
		return classify("delete user", err)
	}
	r.notify(ctx, identity, invalidation.ReasonDeleted)
	return nil
}

func (r *UserRepository) notify(ctx context.Context, identity string, reason invalidation.Reason) {
	ev := invalidation.Event{Identity: identity, Reason: reason, At: r.timestamp()}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.log.Warn("user_invalidation_failed",
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	}
}

// nullIfEmpty maps nil and "" to SQL NULL.
func nullIfEmpty(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
