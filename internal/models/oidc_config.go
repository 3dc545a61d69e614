package models

import (
	"time"

	"github.com/google/uuid"
)

// OIDCConfig represents OIDC provider configuration
type OIDCConfig struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Provider     string    `json:"provider" db:"provider"`
	Issuer       string    `json:"issuer" db:"issuer"`
	Domain       *string   `json:"domain,omitempty" db:"domain"` // OAuth2 domain when it differs from the issuer (Cognito custom domains)
	ClientID     string    `json:"client_id" db:"client_id"`
	ClientSecret *string   `json:"client_secret,omitempty" db:"client_secret"` // nil for public clients
	RedirectURI  string    `json:"redirect_uri" db:"redirect_uri"`
	JWKSUrl      *string   `json:"jwks_url,omitempty" db:"jwks_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
