package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmsystem/pmdash/internal/dashboard/session"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

func (r *runner) loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login admin|client <username|project-id>",
		Short: "Log in as the administrator or as a project client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.Role(args[0])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q, use admin or client", args[0])
			}
			if password == "" {
				var err error
				password, err = readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
			}

			s, err := r.app.Login(cmd.Context(), role, session.Credentials{ID: args[1], Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s %s\n", s.Role, s.Subject)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and revoke its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.app.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (r *runner) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := r.app.Session.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (since %s)\n", s.Role, s.Subject, s.IssuedAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
