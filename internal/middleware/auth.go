package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/membership-api/internal/database"
	logpkg "github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/request"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"go.uber.org/zap"
)

// Authenticator verifies a bearer token and returns the provider identity together with
// a loader for the provider profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, provisioning.ProfileLoader, error)
}

// Provisioner resolves an authenticated identity to its user record, creating it on
// first sight.
type Provisioner interface {
	EnsureProvisionedFunc(ctx context.Context, identity string, load provisioning.ProfileLoader) (*models.User, error)
}

// Auth authenticates the bearer token, provisions the user and stores it in the request
// context.
func Auth(authn Authenticator, provisioner Provisioner, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				respondError(w, r, http.StatusUnauthorized, msg)
				return
			}

			ctx := r.Context()
			identity, load, err := authn.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, models.ErrInvalidToken) {
					logger.Info("token_rejected", zap.String("error", logpkg.SanitizeError(err)))
					respondError(w, r, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				logger.Error("authentication_unavailable", zap.String("error", logpkg.SanitizeError(err)))
				respondError(w, r, http.StatusInternalServerError, "Authentication is unavailable")
				return
			}
			ctx = request.WithIdentity(ctx, identity)

			user, err := provisioner.EnsureProvisionedFunc(ctx, identity, load)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, database.ErrConstraintViolation) {
					status = http.StatusConflict
				}
				logger.Error("user_provision_failed",
					zap.String("identity", logpkg.SanitizeIdentity(identity)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondError(w, r, status, "Failed to provision user")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// bearerToken extracts the token from the Authorization header. The second value is the
// rejection message when the header is unusable.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Missing Authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "Invalid Authorization header format"
	}
	return token, ""
}
