package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/benvon/membership-api/internal/models"
)

// SettingsRepository stores runtime-tunable key/value settings such as CORS origins
// and the rate limit. The server polls it to hot-reload those middlewares.
type SettingsRepository struct {
	db Queryer
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db Queryer) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the setting stored under key, or nil when it is not set.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	s := &models.Setting{}
	err := r.db.GetContext(ctx, s, `SELECT key, value, updated_at FROM app_settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get setting", err)
	}
	return s, nil
}

// Values returns the settings whose keys start with prefix, keyed by full key.
func (r *SettingsRepository) Values(ctx context.Context, prefix string) (map[string]string, error) {
	var rows []models.Setting
	err := r.db.SelectContext(ctx, &rows,
		`SELECT key, value, updated_at FROM app_settings WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, classify("list settings", err)
	}
	out := make(map[string]string, len(rows))
	for _, s := range rows {
		out[s.Key] = s.Value
	}
	return out, nil
}

// Set upserts a setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return constraintf("set setting", "app_settings_pkey")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, strings.TrimSpace(value), time.Now().UTC())
	if err != nil {
		return classify("set setting", err)
	}
	return nil
}

// Delete removes a setting; removing a missing key is not an error.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_settings WHERE key = $1`, key); err != nil {
		return classify("delete setting", err)
	}
	return nil
}

// SplitList splits a comma-separated setting value, trimming blanks and duplicates.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
