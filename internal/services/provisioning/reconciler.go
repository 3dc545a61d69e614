// Package provisioning maps externally authenticated identities to application users.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrMissingIdentity is returned when the identity provider supplied an empty subject.
var ErrMissingIdentity = errors.New("identity is required")

// Store is the part of the user repository the reconciler needs.
type Store interface {
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// ProfileLoader fetches provider attributes for an identity. It is only called
// when the identity has no record yet.
type ProfileLoader func(ctx context.Context) (models.Profile, error)

// Reconciler ensures exactly one user record exists per external identity.
// It keeps no state between calls; concurrent first logins are settled by the
// primary key on users.identity.
type Reconciler struct {
	store Store
	log   *zap.Logger
}

// NewReconciler creates a reconciler backed by store.
func NewReconciler(store Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log}
}

// EnsureProvisioned returns the user for identity, creating it from profile on first sight.
func (r *Reconciler) EnsureProvisioned(ctx context.Context, identity string, profile models.Profile) (*models.User, error) {
	return r.EnsureProvisionedFunc(ctx, identity, func(context.Context) (models.Profile, error) {
		return profile, nil
	})
}

// EnsureProvisionedFunc is EnsureProvisioned with a lazily loaded profile.
func (r *Reconciler) EnsureProvisionedFunc(ctx context.Context, identity string, load ProfileLoader) (*models.User, error) {
	ctx, span := telemetry.Tracer("provisioning").Start(ctx, "provisioning.ensure")
	defer span.End()

	if identity == "" {
		span.SetStatus(codes.Error, ErrMissingIdentity.Error())
		return nil, ErrMissingIdentity
	}
	span.SetAttributes(attribute.String("user.identity", identity))

	existing, err := r.store.GetByIdentity(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("provisioning.created", false))
		return existing, nil
	}

	profile, err := load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile load failed")
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	created, err := r.store.Create(ctx, DefaultUser(identity, profile))
	if err == nil {
		span.SetAttributes(attribute.Bool("provisioning.created", true))
		r.log.Info("user_provisioned",
			zap.String("identity", logger.SanitizeIdentity(identity)),
		)
		return created, nil
	}

	if !errors.Is(err, database.ErrConstraintViolation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Another request may have inserted the same identity between our lookup and insert.
	winner, refetchErr := r.store.GetByIdentity(ctx, identity)
	if refetchErr != nil {
		span.RecordError(refetchErr)
		span.SetStatus(codes.Error, "refetch failed")
		return nil, fmt.Errorf("failed to look up user after conflict: %w", refetchErr)
	}
	if winner == nil {
		// The conflict was on something other than identity, typically the username.
		span.RecordError(err)
		span.SetStatus(codes.Error, "constraint violation")
		r.log.Warn("user_provision_conflict",
			zap.String("identity", logger.SanitizeIdentity(identity)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("provisioning.created", false),
		attribute.Bool("provisioning.race_recovered", true),
	)
	r.log.Debug("user_provision_race_recovered",
		zap.String("identity", logger.SanitizeIdentity(identity)),
	)
	return winner, nil
}

// DefaultUser builds the record created for an identity seen for the first time.
func DefaultUser(identity string, profile models.Profile) *models.User {
	email := ""
	for _, e := range profile.Emails {
		if e = strings.TrimSpace(e); e != "" {
			email = e
			break
		}
	}

	username := strings.TrimSpace(profile.Username)
	if username == "" {
		username = strings.TrimSpace(profile.DisplayName)
	}
	if username == "" {
		username = identity
	}

	return &models.User{
		Identity:   identity,
		Email:      email,
		Username:   username,
		Membership: models.MembershipFree,
		Status:     models.UserStatusActive,
	}
}
