package models

import "time"

// Setting keys stored in app_settings.
const (
	SettingCORSAllowedOrigins   = "cors.allowed_origins"
	SettingCORSAllowCredentials = "cors.allow_credentials"
	SettingCORSMaxAge           = "cors.max_age"
	SettingRateLimit            = "ratelimit.rate"
)

// Setting is a single runtime-tunable value, hot reloaded by the server.
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
