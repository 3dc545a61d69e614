package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SettingsSource reads runtime settings by key prefix.
type SettingsSource interface {
	Values(ctx context.Context, prefix string) (map[string]string, error)
}

// Wrapper decorates a handler with one loaded configuration.
type Wrapper func(next http.Handler) http.Handler

// BuildFunc loads the current settings and returns the wrapper they describe.
type BuildFunc func(ctx context.Context) (Wrapper, error)

// Reloader is middleware whose configuration is rebuilt by Reload. The built wrapper is
// shared by every route using the middleware; handlers are never stored, so one Reloader
// may be mounted on any number of routers. Until the first successful Reload requests
// pass through unwrapped, and a failed Reload keeps the previous wrapper.
type Reloader struct {
	name     string
	build    BuildFunc
	log      *zap.Logger
	interval time.Duration
	current  atomic.Pointer[Wrapper]
}

// NewReloader creates a reloader named name for logging.
func NewReloader(name string, build BuildFunc, log *zap.Logger, interval time.Duration) *Reloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reloader{name: name, build: build, log: log, interval: interval}
}

// Middleware returns middleware that applies the wrapper current at request time.
func (r *Reloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			wrap := r.current.Load()
			if wrap == nil {
				next.ServeHTTP(w, req)
				return
			}
			(*wrap)(next).ServeHTTP(w, req)
		})
	}
}

// Start reloads every interval until ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Reload(ctx)
		}
	}
}

// Reload rebuilds the wrapper from current settings.
func (r *Reloader) Reload(ctx context.Context) error {
	wrap, err := r.build(ctx)
	if err != nil {
		r.log.Warn("middleware_reload_failed", zap.String("middleware", r.name), zap.Error(err))
		return err
	}
	r.current.Store(&wrap)
	return nil
}
