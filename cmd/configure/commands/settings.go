package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewSettingsCmd creates the settings command for runtime-tunable values. The server
// picks up changes on its next reload tick.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage runtime settings (CORS, rate limiting)",
		Long: "Manage settings the server hot reloads. Known keys: " +
			strings.Join(knownSettingKeys(), ", "),
	}
	cmd.AddCommand(newSettingsSetCmd(), newSettingsGetCmd(), newSettingsListCmd(), newSettingsDeleteCmd())
	return cmd
}

// settingValidators checks values before they are stored, so a typo cannot reach the
// server's reload loop.
var settingValidators = map[string]func(string) error{
	models.SettingCORSAllowedOrigins: func(v string) error {
		for _, origin := range database.SplitList(v) {
			if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
				return fmt.Errorf("origin %q must start with http:// or https://", origin)
			}
		}
		return nil
	},
	models.SettingCORSAllowCredentials: func(v string) error {
		_, err := strconv.ParseBool(v)
		return err
	},
	models.SettingCORSMaxAge: func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("max age must not be negative")
		}
		return nil
	},
	models.SettingRateLimit: func(v string) error {
		_, err := limiter.NewRateFromFormatted(v)
		return err
	},
}

func knownSettingKeys() []string {
	keys := make([]string, 0, len(settingValidators))
	for k := range settingValidators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validateSetting rejects unknown keys and malformed values.
func validateSetting(key, value string) error {
	validate, ok := settingValidators[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(knownSettingKeys(), ", "))
	}
	if err := validate(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := validateSetting(key, value); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := database.NewSettingsRepository(db).Set(ctx, key, value); err != nil {
				return fmt.Errorf("failed to save setting: %w", err)
			}
			fmt.Printf("Set %s = %s\n", key, strings.TrimSpace(value))
			return nil
		},
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			s, err := database.NewSettingsRepository(db).Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get setting: %w", err)
			}
			if s == nil {
				fmt.Printf("%s is not set; the server default applies\n", args[0])
				return nil
			}
			fmt.Printf("%s = %s (updated %s)\n", s.Key, s.Value, s.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func newSettingsListCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			values, err := database.NewSettingsRepository(db).Values(ctx, prefix)
			if err != nil {
				return fmt.Errorf("failed to list settings: %w", err)
			}
			if len(values) == 0 {
				fmt.Println("No settings stored; server defaults apply")
				return nil
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s = %s\n", k, values[k])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list keys with this prefix (e.g. cors.)")
	return cmd
}

func newSettingsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a setting so the server default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := database.NewSettingsRepository(db).Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete setting: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
