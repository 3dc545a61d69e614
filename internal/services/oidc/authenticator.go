package oidc

import (
	"context"
	"fmt"

	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/services/provisioning"
)

// Authenticator verifies bearer tokens against a stored provider configuration.
type Authenticator struct {
	provider     *Provider
	keys         KeySource
	providerName string
}

// NewAuthenticator creates an authenticator for the named provider configuration.
func NewAuthenticator(provider *Provider, keys KeySource, providerName string) *Authenticator {
	return &Authenticator{provider: provider, keys: keys, providerName: providerName}
}

// Authenticate verifies token and returns the subject with a loader for the profile
// carried in the token's claims.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, provisioning.ProfileLoader, error) {
	cfg, err := a.provider.GetConfig(ctx, a.providerName)
	if err != nil {
		return "", nil, err
	}
	jwksURL := ""
	if cfg.JWKSUrl != nil {
		jwksURL = *cfg.JWKSUrl
	}
	claims, err := NewVerifier(a.keys, cfg.Issuer, jwksURL).Verify(ctx, token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	profile := claims.Profile()
	return claims.Sub, func(context.Context) (models.Profile, error) { return profile, nil }, nil
}
