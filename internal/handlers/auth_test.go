package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/request"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGate = provisioning.Gate{SignupURL: "https://example.com/signup", PricingURL: "https://example.com/pricing"}

// asUser injects user into the request the way the auth middleware does.
func asUser(user *models.User, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != nil {
			ctx := request.WithIdentity(r.Context(), user.Identity)
			r = r.WithContext(request.WithUser(ctx, user))
		}
		next.ServeHTTP(w, r)
	})
}

func meRouter(store *memUsers, user *models.User) http.Handler {
	h := NewAuthHandler(nil, "default", newTestActions(store), testGate, nil)
	r := mux.NewRouter()
	h.RegisterPublicRoutes(r.PathPrefix("/api/v1/auth").Subrouter())
	h.RegisterRoutes(r.PathPrefix("/api/v1/auth").Subrouter())
	return asUser(user, r)
}

func TestAuthHandler_GetMe(t *testing.T) {
	t.Parallel()
	alice := models.User{Identity: "user_1", Username: "alice", Membership: models.MembershipFree, Status: models.UserStatusActive}
	store := newMemUsers(alice)

	code, resp := do(t, meRouter(store, &alice), http.MethodGet, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusOK, code)
	var got models.User
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "alice", got.Username)

	code, _ = do(t, meRouter(store, nil), http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuthHandler_UpdateMe(t *testing.T) {
	t.Parallel()
	alice := models.User{Identity: "user_1", Username: "alice"}
	bob := models.User{Identity: "user_2", Username: "bob"}
	store := newMemUsers(alice, bob)
	router := meRouter(store, &alice)

	code, resp := do(t, router, http.MethodPatch, "/api/v1/auth/me", `{"email":"alice@example.com","username":"alicia"}`)
	require.Equal(t, http.StatusOK, code)
	var got models.User
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "alicia", got.Username)

	code, resp = do(t, router, http.MethodPatch, "/api/v1/auth/me", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Nothing to update", resp.Message)

	code, _ = do(t, router, http.MethodPatch, "/api/v1/auth/me", `{"membership":"pro"}`)
	assert.Equal(t, http.StatusBadRequest, code, "users cannot upgrade themselves")

	code, _ = do(t, router, http.MethodPatch, "/api/v1/auth/me", `{"username":"bob"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAuthHandler_DeleteMe(t *testing.T) {
	t.Parallel()
	alice := models.User{Identity: "user_1", Username: "alice"}
	store := newMemUsers(alice)

	code, _ := do(t, meRouter(store, &alice), http.MethodDelete, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusOK, code)

	u, err := store.GetByIdentity(t.Context(), "user_1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestAuthHandler_GetAccess(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		user *models.User
		want provisioning.Decision
	}{
		{
			name: "free member",
			user: &models.User{Identity: "u", Membership: models.MembershipFree, Status: models.UserStatusActive},
			want: provisioning.Decision{Outcome: provisioning.OutcomePricing, RedirectTo: testGate.PricingURL},
		},
		{
			name: "pro member",
			user: &models.User{Identity: "u", Membership: models.MembershipPro, Status: models.UserStatusActive},
			want: provisioning.Decision{Outcome: provisioning.OutcomeAllowed},
		},
		{
			name: "banned pro member",
			user: &models.User{Identity: "u", Membership: models.MembershipPro, Status: models.UserStatusBanned},
			want: provisioning.Decision{Outcome: provisioning.OutcomeForbidden},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, resp := do(t, meRouter(newMemUsers(), tt.user), http.MethodGet, "/api/v1/auth/me/access", "")
			require.Equal(t, http.StatusOK, code)
			var got provisioning.Decision
			require.NoError(t, json.Unmarshal(resp.Data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthHandler_OIDCLoginDisabled(t *testing.T) {
	t.Parallel()
	code, resp := do(t, meRouter(newMemUsers(), nil), http.MethodGet, "/api/v1/auth/oidc/login", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "OIDC login is not enabled", resp.Message)
}

func TestProPlaceholder(t *testing.T) {
	t.Parallel()
	pro := &models.User{Identity: "u", Username: "carol", Membership: models.MembershipPro}

	w := httptest.NewRecorder()
	asUser(pro, http.HandlerFunc(ProPlaceholder)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pro", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"carol"`)
	assert.Contains(t, w.Body.String(), `"membership":"pro"`)

	w = httptest.NewRecorder()
	ProPlaceholder(w, httptest.NewRequest(http.MethodGet, "/api/v1/pro", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	VersionInfo(w, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"version":"`+Version+`"`))
}

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()
	h, err := NewOpenAPIHandler("../../api/openapi/openapi.yaml")
	require.NoError(t, err)
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc, "openapi")
	assert.Contains(t, doc, "paths")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-yaml", w.Header().Get("Content-Type"))

	_, err = newOpenAPIHandler([]byte("openapi: [unclosed"))
	assert.Error(t, err)

	_, err = NewOpenAPIHandler("does-not-exist.yaml")
	assert.Error(t, err)
}
