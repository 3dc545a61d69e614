package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured OIDC providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			configs, err := database.NewOIDCConfigRepository(db).GetAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to list OIDC configs: %w", err)
			}
			return writeProviders(cmd.OutOrStdout(), configs)
		},
	}
}

// writeProviders prints one row per provider. Client secrets are never shown.
func writeProviders(out io.Writer, configs []*models.OIDCConfig) error {
	if len(configs) == 0 {
		_, err := fmt.Fprintln(out, "No OIDC providers configured")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tISSUER\tCLIENT ID\tCONFIDENTIAL\tJWKS URL")
	for _, c := range configs {
		jwks := "-"
		if c.JWKSUrl != nil {
			jwks = *c.JWKSUrl
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.Provider, c.Issuer, c.ClientID, c.ClientSecret != nil, jwks)
	}
	return tw.Flush()
}
