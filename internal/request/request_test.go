package request

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/benvon/membership-api/internal/models"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"blank x-forwarded-for entry", map[string]string{"X-Forwarded-For": " , 5.6.7.8", "X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr host", nil, "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.1", "10.0.0.1"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			if got := ClientIP(r); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	t.Parallel()
	u := &models.User{Identity: "user_1", Email: "a@b.c"}
	ctx := WithUser(context.Background(), u)
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	if got := UserFromContext(r); got != u {
		t.Errorf("UserFromContext() = %p, want %p", got, u)
	}
	if got := IdentityFromContext(ctx); got != "user_1" {
		t.Errorf("IdentityFromContext() = %q, want user_1", got)
	}
}

func TestContext_Empty(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/", nil)
	if got := UserFromContext(r); got != nil {
		t.Errorf("UserFromContext() = %+v, want nil", got)
	}
	if got := IdentityFromContext(r.Context()); got != "" {
		t.Errorf("IdentityFromContext() = %q, want empty", got)
	}

	ctx := context.WithValue(context.Background(), userContextKey, "not a user")
	if got := UserFromContext(r.WithContext(ctx)); got != nil {
		t.Errorf("UserFromContext() = %+v, want nil when wrong type", got)
	}
}
