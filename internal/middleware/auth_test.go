package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/request"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuthenticator map[string]string

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (string, provisioning.ProfileLoader, error) {
	switch token {
	case "broken-config":
		return "", nil, errors.New("failed to get OIDC config: connection refused")
	}
	identity, ok := f[token]
	if !ok {
		return "", nil, fmt.Errorf("%w: signature mismatch", models.ErrInvalidToken)
	}
	return identity, func(context.Context) (models.Profile, error) {
		return models.Profile{Username: identity + "-name"}, nil
	}, nil
}

type fakeProvisioner struct {
	err error
}

func (f fakeProvisioner) EnsureProvisionedFunc(ctx context.Context, identity string, load provisioning.ProfileLoader) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	profile, err := load(ctx)
	if err != nil {
		return nil, err
	}
	return provisioning.DefaultUser(identity, profile), nil
}

func TestAuth(t *testing.T) {
	t.Parallel()

	authn := fakeAuthenticator{"good": "user-1"}
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := request.UserFromContext(r)
		if user == nil {
			t.Error("expected user in context")
			return
		}
		_, _ = w.Write([]byte(user.Identity + "|" + user.Username + "|" + request.IdentityFromContext(r.Context())))
	})

	tests := []struct {
		name        string
		header      string
		provisioner fakeProvisioner
		wantStatus  int
		wantBody    string
		wantMessage string
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "user-1|user-1-name|user-1"},
		{name: "lower case scheme", header: "bearer good", wantStatus: http.StatusOK, wantBody: "user-1|user-1-name|user-1"},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantMessage: "Missing Authorization header"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid Authorization header format"},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid Authorization header format"},
		{name: "bad token", header: "Bearer forged", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid or expired token"},
		{name: "provider unavailable", header: "Bearer broken-config", wantStatus: http.StatusInternalServerError, wantMessage: "Authentication is unavailable"},
		{
			name:        "unresolvable conflict",
			header:      "Bearer good",
			provisioner: fakeProvisioner{err: &database.ConstraintError{Op: "create user", Constraint: "users_username_key"}},
			wantStatus:  http.StatusConflict,
			wantMessage: "Failed to provision user",
		},
		{
			name:        "storage failure",
			header:      "Bearer good",
			provisioner: fakeProvisioner{err: database.ErrPersistence},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Failed to provision user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Auth(authn, tt.provisioner, zap.NewNop())(echo).ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
				return
			}
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}

func TestAdminToken(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{name: "valid", configured: "s3cret", header: "Bearer s3cret", want: http.StatusNoContent},
		{name: "wrong", configured: "s3cret", header: "Bearer guess", want: http.StatusUnauthorized},
		{name: "prefix of token", configured: "s3cret", header: "Bearer s3c", want: http.StatusUnauthorized},
		{name: "missing", configured: "s3cret", want: http.StatusUnauthorized},
		{name: "disabled", header: "Bearer ", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			AdminToken(tt.configured)(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireMembership(t *testing.T) {
	t.Parallel()

	gate := provisioning.Gate{SignupURL: "/signup", PricingURL: "/pricing"}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name     string
		user     *models.User
		want     int
		redirect string
	}{
		{name: "pro", user: &models.User{Membership: models.MembershipPro, Status: models.UserStatusActive}, want: http.StatusOK},
		{name: "free", user: &models.User{Membership: models.MembershipFree, Status: models.UserStatusActive}, want: http.StatusForbidden, redirect: "/pricing"},
		{name: "no user", want: http.StatusForbidden, redirect: "/signup"},
		{name: "banned pro", user: &models.User{Membership: models.MembershipPro, Status: models.UserStatusBanned}, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/pro/placeholder", nil)
			if tt.user != nil {
				req = req.WithContext(request.WithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			RequireMembership(gate)(ok).ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				return
			}
			var body struct {
				Data provisioning.Decision `json:"data"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.redirect, body.Data.RedirectTo)
		})
	}
}
