package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/benvon/membership-api/internal/actions"
	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewUsersCmd creates the users command for administering user records directly.
func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user records",
	}
	cmd.AddCommand(
		newUsersListCmd(),
		newUsersGetCmd(),
		newUsersCreateCmd(),
		newUsersUpdateCmd(),
		newUsersDeleteCmd(),
		newUsersImportCmd(),
	)
	return cmd
}

// withUsers opens the database and runs fn with user actions whose writes purge the
// server's cached views.
func withUsers(ctx context.Context, fn func(*actions.UserActions) error) error {
	db, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	notifier, closeNotifier := viewPurger(ctx)
	defer closeNotifier()

	repo := database.NewUserRepository(db, database.WithNotifier(notifier))
	return fn(actions.NewUserActions(repo, provisioning.NewReconciler(repo, nil), nil))
}

// printState writes a successful result as indented JSON, or returns the failure.
func printState(w io.Writer, state actions.State) error {
	if !state.OK() {
		return fmt.Errorf("%s", state.Message)
	}
	if state.Data == nil {
		_, err := fmt.Fprintln(w, state.Message)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state.Data)
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				return printState(cmd.OutOrStdout(), users.ListUsers(cmd.Context()))
			})
		},
	}
}

func newUsersGetCmd() *cobra.Command {
	var byCustomer bool
	cmd := &cobra.Command{
		Use:   "get <identity>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				if byCustomer {
					return printState(cmd.OutOrStdout(), users.GetUserByBillingCustomerID(cmd.Context(), args[0]))
				}
				return printState(cmd.OutOrStdout(), users.GetUserByIdentity(cmd.Context(), args[0]))
			})
		},
	}
	cmd.Flags().BoolVar(&byCustomer, "billing-customer", false, "Treat the argument as a billing customer id")
	return cmd
}

// userFlags are the attribute flags shared by create and update.
type userFlags struct {
	email, username, membership, status, customerID, subscriptionID string
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Email address")
	cmd.Flags().StringVar(&f.username, "username", "", "Unique username")
	cmd.Flags().StringVar(&f.membership, "membership", "", "Membership tier (free or pro)")
	cmd.Flags().StringVar(&f.status, "status", "", "Account status (active, inactive or banned)")
	cmd.Flags().StringVar(&f.customerID, "billing-customer-id", "", "Billing customer id")
	cmd.Flags().StringVar(&f.subscriptionID, "billing-subscription-id", "", "Billing subscription id")
}

// update builds a partial update from the flags the user actually passed, so an
// explicit empty value clears a billing link.
func (f *userFlags) update(cmd *cobra.Command) models.UserUpdate {
	var u models.UserUpdate
	changed := cmd.Flags().Changed
	if changed("email") {
		u.Email = &f.email
	}
	if changed("username") {
		u.Username = &f.username
	}
	if changed("membership") {
		m := models.Membership(f.membership)
		u.Membership = &m
	}
	if changed("status") {
		s := models.UserStatus(f.status)
		u.Status = &s
	}
	if changed("billing-customer-id") {
		u.BillingCustomerID = &f.customerID
	}
	if changed("billing-subscription-id") {
		u.BillingSubscriptionID = &f.subscriptionID
	}
	return u
}

func newUsersCreateCmd() *cobra.Command {
	var flags userFlags
	cmd := &cobra.Command{
		Use:   "create <identity>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.CreateUserRequest{
				Identity:   args[0],
				Email:      flags.email,
				Username:   flags.username,
				Membership: models.Membership(flags.membership),
				Status:     models.UserStatus(flags.status),
			}
			if flags.customerID != "" {
				req.BillingCustomerID = &flags.customerID
			}
			if flags.subscriptionID != "" {
				req.BillingSubscriptionID = &flags.subscriptionID
			}
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				return printState(cmd.OutOrStdout(), users.CreateUser(cmd.Context(), req))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newUsersUpdateCmd() *cobra.Command {
	var flags userFlags
	cmd := &cobra.Command{
		Use:   "update <identity>",
		Short: "Update attributes of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := flags.update(cmd)
			if update.IsEmpty() {
				return fmt.Errorf("nothing to update; pass at least one attribute flag")
			}
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				return printState(cmd.OutOrStdout(), users.UpdateUser(cmd.Context(), args[0], update))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newUsersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identity>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				return printState(cmd.OutOrStdout(), users.DeleteUser(cmd.Context(), args[0]))
			})
		},
	}
}

// seedFile is the YAML document read by users import.
type seedFile struct {
	Users []models.CreateUserRequest `yaml:"users"`
}

// parseSeedFile decodes a seed document, rejecting unknown fields.
func parseSeedFile(r io.Reader) ([]models.CreateUserRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed.Users, nil
}

// importUsers creates every seed user, skipping records that already exist. It returns
// how many were created and skipped; other failures stop the import.
func importUsers(ctx context.Context, users *actions.UserActions, seed []models.CreateUserRequest, out io.Writer) (created, skipped int, err error) {
	for _, req := range seed {
		state := users.CreateUser(ctx, req)
		switch {
		case state.OK():
			created++
		case state.HTTPStatus() == http.StatusConflict:
			skipped++
			fmt.Fprintf(out, "skipped %s: %s\n", req.Identity, state.Message)
		default:
			return created, skipped, fmt.Errorf("failed to import %s: %s", req.Identity, state.Message)
		}
	}
	return created, skipped, nil
}

func newUsersImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create users from a YAML seed file",
		Long: "Create users from a YAML file of the form:\n\n" +
			"users:\n  - identity: user_123\n    username: alice\n    email: alice@example.com\n    membership: pro\n\n" +
			"Users that already exist are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer func() { _ = f.Close() }()

			seed, err := parseSeedFile(f)
			if err != nil {
				return err
			}
			return withUsers(cmd.Context(), func(users *actions.UserActions) error {
				created, skipped, err := importUsers(cmd.Context(), users, seed, cmd.ErrOrStderr())
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d users, skipped %d\n", created, skipped)
				return err
			})
		},
	}
}
