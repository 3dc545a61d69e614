package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benvon/membership-api/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var provider, code, verifier string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test OIDC configuration",
		Long: "Test OIDC provider configuration by checking the discovery and JWKS endpoints. " +
			"With --code, also exchange an authorization code for tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return fmt.Errorf("--provider is required")
			}
			ctx := cmd.Context()

			config, err := loadOIDCConfig(ctx, provider)
			if err != nil {
				return err
			}

			fmt.Printf("Testing OIDC configuration for provider: %s\n", provider)
			fmt.Printf("Issuer: %s\n", config.Issuer)

			client := &http.Client{Timeout: 10 * time.Second}

			discoveryURL := config.Issuer + "/.well-known/openid-configuration"
			fmt.Printf("\nTesting discovery endpoint: %s\n", discoveryURL)
			if err := checkEndpoint(ctx, client, discoveryURL); err != nil {
				return fmt.Errorf("discovery endpoint: %w", err)
			}
			fmt.Println("✓ Discovery endpoint is accessible")

			if config.JWKSUrl != nil {
				fmt.Printf("\nTesting JWKS endpoint: %s\n", *config.JWKSUrl)
				if err := checkEndpoint(ctx, client, *config.JWKSUrl); err != nil {
					return fmt.Errorf("JWKS endpoint: %w", err)
				}
				fmt.Println("✓ JWKS endpoint is accessible")
			}

			oauthClient := oidc.NewClient(config)
			if code == "" {
				login := oauthClient.BeginLogin()
				fmt.Printf("\nLog in at the URL below, then rerun with --code and --verifier %s to test the token exchange:\n%s\n",
					login.Verifier, login.URL)
			} else {
				token, err := oauthClient.ExchangeCode(ctx, code, verifier)
				if err != nil {
					return err
				}
				fmt.Printf("\n✓ Code exchange succeeded (token type %s, expires %s)\n",
					token.TokenType, token.Expiry.Format(time.RFC3339))
				if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
					fmt.Println("✓ ID token received")
				}
			}

			fmt.Println("\n✓ OIDC configuration test passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider name to test (required)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code to exchange (optional)")
	cmd.Flags().StringVar(&verifier, "verifier", "", "PKCE verifier printed by the previous run")

	return cmd
}

func checkEndpoint(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close response body: %v\n", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned status %d", resp.StatusCode)
	}
	return nil
}
