package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	defaultCORSOrigin = "http://localhost:3000"
	defaultCORSMaxAge = 86400
)

// NewCORSReloader creates CORS middleware configured from the cors.* settings. Origins
// fall back to fallbackOrigins (FRONTEND_URL, comma separated) when none are stored.
func NewCORSReloader(settings SettingsSource, fallbackOrigins string, log *zap.Logger, interval time.Duration) *Reloader {
	build := func(ctx context.Context) (Wrapper, error) {
		values, err := settings.Values(ctx, "cors.")
		if err != nil {
			return nil, err
		}
		return cors.New(CORSOptions(values, fallbackOrigins)).Handler, nil
	}
	return NewReloader("cors", build, log, interval)
}

// CORSOptions builds rs/cors options from stored settings.
func CORSOptions(values map[string]string, fallbackOrigins string) cors.Options {
	origins := database.SplitList(values[models.SettingCORSAllowedOrigins])
	if len(origins) == 0 {
		origins = database.SplitList(fallbackOrigins)
	}
	if len(origins) == 0 {
		origins = []string{defaultCORSOrigin}
	}

	allowCreds := true
	if v, err := strconv.ParseBool(values[models.SettingCORSAllowCredentials]); err == nil {
		allowCreds = v
	}
	maxAge := defaultCORSMaxAge
	if v, err := strconv.Atoi(values[models.SettingCORSMaxAge]); err == nil && v >= 0 {
		maxAge = v
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	}
}
