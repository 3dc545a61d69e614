package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewOIDCCmd creates the OIDC configuration command
func NewOIDCCmd() *cobra.Command {
	var issuer, domain, clientID, clientSecret, redirectURI, jwksURL string
	var remove bool

	cmd := &cobra.Command{
		Use:   "oidc <provider-name>",
		Short: "Configure OIDC provider",
		Long:  "Create or update an OIDC provider used to verify bearer tokens. The name is any identifier (e.g. 'cognito', 'okta') and is selected with OIDC_PROVIDER.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.TrimSpace(args[0])
			if provider == "" {
				return fmt.Errorf("provider name cannot be empty")
			}
			if remove {
				return removeOIDCConfig(cmd.Context(), provider)
			}
			if issuer == "" || clientID == "" || redirectURI == "" {
				return fmt.Errorf("required flags: --issuer, --client-id, --redirect-uri (--client-secret is optional for public clients)")
			}

			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			oidcRepo := database.NewOIDCConfigRepository(db)
			desired := oidcConfigFromFlags(provider, issuer, domain, clientID, clientSecret, redirectURI, jwksURL)

			existing, err := oidcRepo.GetByProvider(ctx, provider)
			switch {
			case err == nil:
				desired.ID = existing.ID
				if err := oidcRepo.Update(ctx, desired); err != nil {
					return fmt.Errorf("failed to update OIDC config: %w", err)
				}
				fmt.Printf("Updated OIDC configuration for provider: %s\n", provider)
			case errors.Is(err, database.ErrNotFound):
				if err := oidcRepo.Create(ctx, desired); err != nil {
					return fmt.Errorf("failed to create OIDC config: %w", err)
				}
				fmt.Printf("Created OIDC configuration for provider: %s\n", provider)
			default:
				return fmt.Errorf("failed to look up OIDC config: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "OIDC issuer URL (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "OAuth2 domain when it differs from the issuer (e.g. Cognito custom domains)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (optional for public clients)")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "OAuth2 redirect URI (required)")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the provider configuration instead")
	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "JWKS URL (defaults to <issuer>/.well-known/jwks.json)")

	return cmd
}

// oidcConfigFromFlags builds the stored configuration. Empty optional flags are stored
// as NULL.
func oidcConfigFromFlags(provider, issuer, domain, clientID, clientSecret, redirectURI, jwksURL string) *models.OIDCConfig {
	issuer = strings.TrimRight(issuer, "/")
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}
	config := &models.OIDCConfig{
		ID:          uuid.New(),
		Provider:    provider,
		Issuer:      issuer,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		JWKSUrl:     &jwksURL,
	}
	if domain != "" {
		config.Domain = &domain
	}
	if clientSecret != "" {
		config.ClientSecret = &clientSecret
	}
	return config
}

// loadOIDCConfig opens the database and returns the configuration of provider.
func loadOIDCConfig(ctx context.Context, provider string) (*models.OIDCConfig, error) {
	db, closeDB, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	config, err := database.NewOIDCConfigRepository(db).GetByProvider(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config: %w", err)
	}
	return config, nil
}

func removeOIDCConfig(ctx context.Context, provider string) error {
	db, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := database.NewOIDCConfigRepository(db).Delete(ctx, provider); err != nil {
		return fmt.Errorf("failed to delete OIDC config: %w", err)
	}
	fmt.Printf("Deleted OIDC configuration for provider: %s\n", provider)
	return nil
}
