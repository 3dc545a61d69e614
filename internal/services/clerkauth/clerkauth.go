// Package clerkauth authenticates Clerk session tokens and loads Clerk user profiles.
package clerkauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// ErrInvalidToken wraps every failure to verify a presented session token.
var ErrInvalidToken = models.ErrInvalidToken

// Authenticator verifies Clerk session tokens. The profile is fetched from the Clerk
// backend API only when the reconciler asks for it.
type Authenticator struct {
	verify  func(ctx context.Context, token string) (string, error)
	getUser func(ctx context.Context, id string) (*clerk.User, error)
}

// New sets the Clerk secret key and returns an authenticator backed by the Clerk API.
func New(secretKey string) *Authenticator {
	clerk.SetKey(secretKey)
	return &Authenticator{verify: verifySession, getUser: user.Get}
}

func verifySession(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Authenticate verifies token and returns the Clerk user id with a lazy profile loader.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, provisioning.ProfileLoader, error) {
	subject, err := a.verify(ctx, token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if subject == "" {
		return "", nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return subject, func(ctx context.Context) (models.Profile, error) {
		return a.Profile(ctx, subject)
	}, nil
}

// Profile fetches the Clerk user and maps it to a provider profile. The primary email
// address comes first.
func (a *Authenticator) Profile(ctx context.Context, id string) (models.Profile, error) {
	u, err := a.getUser(ctx, id)
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to load clerk user: %w", err)
	}
	return ProfileOf(u), nil
}

// ProfileOf converts a Clerk user into a provider profile.
func ProfileOf(u *clerk.User) models.Profile {
	var p models.Profile
	if u == nil {
		return p
	}
	if u.Username != nil {
		p.Username = *u.Username
	}
	p.DisplayName = strings.TrimSpace(deref(u.FirstName))

	primary := deref(u.PrimaryEmailAddressID)
	for _, e := range u.EmailAddresses {
		if e == nil || e.EmailAddress == "" {
			continue
		}
		if e.ID == primary {
			p.Emails = append([]string{e.EmailAddress}, p.Emails...)
			continue
		}
		p.Emails = append(p.Emails, e.EmailAddress)
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
