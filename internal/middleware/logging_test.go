package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{name: "GET request", method: http.MethodGet, path: "/healthz", handlerStatus: http.StatusOK},
		{name: "POST request", method: http.MethodPost, path: "/api/v1/users", handlerStatus: http.StatusCreated},
		{name: "404 request", method: http.MethodGet, path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
				w.WriteHeader(http.StatusTeapot)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.0.2.1:5555"
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one http_request entry, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if got := fields["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("Expected status_code %d, got %v", tt.handlerStatus, got)
			}
			if got := fields["path"]; got != tt.path {
				t.Errorf("Expected path %s, got %v", tt.path, got)
			}
			if got := fields["ip"]; got != "192.0.2.1" {
				t.Errorf("Expected ip 192.0.2.1, got %v", got)
			}
		})
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		event  string
	}{
		{status: http.StatusUnauthorized, event: "security_event"},
		{status: http.StatusForbidden, event: "security_event"},
		{status: http.StatusTooManyRequests, event: "rate_limit_violation"},
		{status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.WarnLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

			if tt.event == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit entries, got %d", logs.Len())
				}
				return
			}
			if logs.FilterMessage(tt.event).Len() != 1 {
				t.Errorf("Expected one %s entry, got %v", tt.event, logs.All())
			}
		})
	}
}
