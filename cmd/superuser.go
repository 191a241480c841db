package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is swapped in tests.
var readPassword = term.ReadPassword

var superuserCmd = &cobra.Command{
	Use:   "superuser",
	Short: "Manage superadmin accounts",
}

var superuserCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a superadmin and send the verification email",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		if password == "" {
			var err error
			password, err = promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
		}

		return withAuthService(cmd.Context(), func(ctx context.Context, auth *service.UserAuthService) error {
			user, err := auth.CreateSuperuser(ctx, email, password, username)
			if err != nil {
				if errors.Is(err, service.ErrDuplicateIdentity) {
					return fmt.Errorf("email %q or username %q is already taken", email, username)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "superuser %s (id %d) created, verification email sent to %s\n", user.Username, user.ID, user.Email)
			return nil
		})
	},
}

var superuserPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the superadmin role to an existing user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")

		return withAuthService(cmd.Context(), func(ctx context.Context, auth *service.UserAuthService) error {
			user, err := auth.PromoteSuperuser(ctx, email)
			if err != nil {
				if errors.Is(err, service.ErrIdentityNotFound) {
					return fmt.Errorf("no user with email %q", email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (id %d) is now %s\n", user.Username, user.ID, user.Role)
			return nil
		})
	},
}

func init() {
	superuserCreateCmd.Flags().String("email", "", "superuser email")
	superuserCreateCmd.Flags().String("username", "", "superuser username")
	superuserCreateCmd.Flags().String("password", "", "superuser password (prompted when empty)")
	_ = superuserCreateCmd.MarkFlagRequired("email")
	_ = superuserCreateCmd.MarkFlagRequired("username")

	superuserPromoteCmd.Flags().String("email", "", "email of the user to promote")
	_ = superuserPromoteCmd.MarkFlagRequired("email")

	superuserCmd.AddCommand(superuserCreateCmd)
	superuserCmd.AddCommand(superuserPromoteCmd)
	rootCmd.AddCommand(superuserCmd)
}

func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Enter password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	password := strings.TrimRight(string(first), "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

func withAuthService(ctx context.Context, fn func(ctx context.Context, auth *service.UserAuthService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := loadConfig()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	conn, err := event.Connect(ctx, cfg.NATS.URL, "market-auth-cli")
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Drain()

	svcs, err := newServices(cfg, db, conn)
	if err != nil {
		return err
	}
	return fn(ctx, svcs.auth)
}
