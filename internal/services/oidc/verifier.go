package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/membership-api/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrNoJWKS is returned when the provider configuration has no JWKS URL.
var ErrNoJWKS = errors.New("JWKS URL not configured")

const clockSkew = 30 * time.Second

// Verifier verifies provider-issued JWTs.
type Verifier struct {
	keys    KeySource
	issuer  string
	jwksURL string
}

// NewVerifier creates a verifier for tokens from issuer signed by keys at jwksURL.
func NewVerifier(keys KeySource, issuer, jwksURL string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, jwksURL: jwksURL}
}

// Verify checks the signature, expiry and issuer of tokenString and extracts its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	if v.jwksURL == "" {
		return nil, ErrNoJWKS
	}
	keys, err := v.keys.Keys(ctx, v.jwksURL)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if token.Subject() == "" {
		return nil, errors.New("token missing subject claim")
	}

	claims := &models.JWTClaims{
		Sub:               token.Subject(),
		Iss:               token.Issuer(),
		Email:             stringClaim(token, "email"),
		Name:              stringClaim(token, "name"),
		GivenName:         stringClaim(token, "given_name"),
		PreferredUsername: stringClaim(token, "preferred_username", "username"),
		Exp:               token.Expiration().Unix(),
		Iat:               token.IssuedAt().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	return claims, nil
}

// stringClaim returns the first non-empty string claim among names.
func stringClaim(token jwt.Token, names ...string) string {
	for _, name := range names {
		if v, ok := token.Get(name); ok {
			if s, _ := v.(string); s != "" {
				return s
			}
		}
	}
	return ""
}
