package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/request"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"
)

// DefaultRate is used when neither the ratelimit.rate setting nor RATE_LIMIT is usable.
const DefaultRate = "5-S"

// NewRateLimitReloader creates per-client-IP rate limiting whose rate comes from the
// ratelimit.rate setting, falling back to defaultRate.
func NewRateLimitReloader(store limiter.Store, settings SettingsSource, defaultRate string, log *zap.Logger, interval time.Duration) *Reloader {
	if log == nil {
		log = zap.NewNop()
	}
	build := func(ctx context.Context) (Wrapper, error) {
		stored := ""
		if values, err := settings.Values(ctx, "ratelimit."); err != nil {
			log.Warn("failed_to_load_ratelimit_settings_using_default", zap.Error(err))
		} else {
			stored = values[models.SettingRateLimit]
		}
		rate, err := ParseRate(stored, defaultRate)
		if err != nil {
			return nil, err
		}

		mw := stdlibmw.NewMiddleware(limiter.New(store, rate),
			stdlibmw.WithKeyGetter(request.ClientIP),
			stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
				respondError(w, r, http.StatusTooManyRequests, "Too many requests")
			}),
			stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				log.Error("rate_limiter_store_failed", zap.Error(err))
				respondError(w, r, http.StatusServiceUnavailable, "Service temporarily unavailable")
			}),
		)
		return mw.Handler, nil
	}
	return NewReloader("ratelimit", build, log, interval)
}

// ParseRate parses the first usable rate among stored, fallback and DefaultRate.
func ParseRate(stored, fallback string) (limiter.Rate, error) {
	var lastErr error
	for _, s := range []string{stored, fallback, DefaultRate} {
		if s == "" {
			continue
		}
		rate, err := limiter.NewRateFromFormatted(s)
		if err == nil {
			return rate, nil
		}
		lastErr = err
	}
	return limiter.Rate{}, lastErr
}
