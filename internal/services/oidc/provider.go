package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/membership-api/internal/models"
)

const discoveryPath = "/.well-known/openid-configuration"

// ConfigSource loads stored provider configuration.
type ConfigSource interface {
	GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error)
}

// Provider manages OIDC provider configuration
type Provider struct {
	configs ConfigSource
	client  *http.Client
}

// NewProvider creates a new OIDC provider manager
func NewProvider(configs ConfigSource) *Provider {
	return &Provider{configs: configs, client: &http.Client{Timeout: 5 * time.Second}}
}

// GetConfig retrieves OIDC configuration for a provider
func (p *Provider) GetConfig(ctx context.Context, providerName string) (*models.OIDCConfig, error) {
	config, err := p.configs.GetByProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config: %w", err)
	}
	return config, nil
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}

// GetLoginConfig returns the configuration needed for frontend OIDC login.
// Endpoints come from the discovery document when it is reachable.
func (p *Provider) GetLoginConfig(ctx context.Context, providerName string) (*LoginConfig, error) {
	config, err := p.GetConfig(ctx, providerName)
	if err != nil {
		return nil, err
	}

	auth, token := Endpoints(config)
	if d, err := p.discover(ctx, config.Issuer); err == nil {
		if d.AuthorizationEndpoint != "" && !hasDomain(config) {
			auth = d.AuthorizationEndpoint
		}
		if d.TokenEndpoint != "" && !hasDomain(config) {
			token = d.TokenEndpoint
		}
	}

	return &LoginConfig{
		AuthorizationEndpoint: auth,
		TokenEndpoint:         token,
		ClientID:              config.ClientID,
		RedirectURI:           config.RedirectURI,
		Scope:                 strings.Join(Scopes, " "),
	}, nil
}

type discovery struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

func (p *Provider) discover(ctx context.Context, issuer string) (*discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(issuer, "/")+discoveryPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}
	var d discovery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func hasDomain(config *models.OIDCConfig) bool {
	return config.Domain != nil && *config.Domain != ""
}

// Endpoints derives the OAuth2 authorize and token endpoints for config. A configured
// domain takes precedence over the issuer, which Cognito needs for hosted UI flows.
func Endpoints(config *models.OIDCConfig) (auth, token string) {
	base := strings.TrimSuffix(config.Issuer, "/")
	if hasDomain(config) {
		base = strings.TrimSuffix(*config.Domain, "/")
		if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
			base = "https://" + base
		}
	}
	return base + "/oauth2/authorize", base + "/oauth2/token"
}
