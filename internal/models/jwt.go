package models

import "errors"

// ErrInvalidToken is returned by authenticators when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// JWTClaims represents the claims extracted from a JWT token
type JWTClaims struct {
	Sub               string `json:"sub"`   // Subject (identity at the provider)
	Email             string `json:"email"` // User email
	Name              string `json:"name"`  // Display name
	GivenName         string `json:"given_name"`
	PreferredUsername string `json:"preferred_username"`
	Exp               int64  `json:"exp"` // Expiration time
	Iat               int64  `json:"iat"` // Issued at
	Iss               string `json:"iss"` // Issuer
	Aud               string `json:"aud"` // Audience
}

// Profile returns the provider attributes carried by the token.
func (c *JWTClaims) Profile() Profile {
	p := Profile{Username: c.PreferredUsername, DisplayName: c.Name}
	if p.DisplayName == "" {
		p.DisplayName = c.GivenName
	}
	if c.Email != "" {
		p.Emails = []string{c.Email}
	}
	return p
}
