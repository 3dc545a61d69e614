// Package request holds per-request values shared between middleware and handlers.
package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/benvon/membership-api/internal/models"
)

type contextKey string

const (
	userContextKey     contextKey = "user"
	identityContextKey contextKey = "identity"
)

// ClientIP extracts the client IP from the request, preferring X-Forwarded-For, then
// X-Real-IP, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithIdentity records the verified provider identity, before any user record is resolved.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the verified identity, or "" for anonymous requests.
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityContextKey).(string)
	return id
}

// WithUser returns a context with the provisioned user attached. It also records the
// user's identity.
func WithUser(ctx context.Context, user *models.User) context.Context {
	if user != nil {
		ctx = WithIdentity(ctx, user.Identity)
	}
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user from the request context, or nil if missing.
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}
