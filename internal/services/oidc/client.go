package oidc

import (
	"context"
	"fmt"

	"github.com/benvon/membership-api/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Scopes requested during login.
var Scopes = []string{"openid", "email", "profile"}

// Client runs the authorization code flow, with PKCE, against one configured provider.
type Client struct {
	config *oauth2.Config
}

// LoginRequest is the state a caller keeps between sending the user to URL and
// exchanging the returned code.
type LoginRequest struct {
	URL      string
	State    string
	Verifier string
}

// NewClient builds a client from a stored provider configuration.
func NewClient(cfg *models.OIDCConfig) *Client {
	var secret string
	if cfg.ClientSecret != nil {
		secret = *cfg.ClientSecret
	}
	authURL, tokenURL := Endpoints(cfg)
	return &Client{config: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: secret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
	}}
}

// BeginLogin starts a login with a fresh state and PKCE verifier.
func (c *Client) BeginLogin() LoginRequest {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	return LoginRequest{
		URL:      c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}
}

// ExchangeCode trades an authorization code for tokens. verifier must be the one
// issued by BeginLogin for this login, or "" if the login did not use PKCE.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
