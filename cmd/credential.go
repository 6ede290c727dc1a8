package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the provider credential",
		Long: `Stores, clears or shows the API credential for the configured provider.

The credential is kept in a local YAML file readable only by the current user. An environment
variable for the provider takes precedence over the file.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show whether a credential is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), maskedStatus(cfg.Credentials(slog.Default()).Status()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store a credential (reads stdin when no token is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s credential: ", cfg.Provider)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read credential: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("credential is empty")
			}

			store := cfg.Credentials(slog.Default())
			if err := store.Set(token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), maskedStatus(store.Status()))
			if env := cfg.CredentialEnv(); env != "" && os.Getenv(env) != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Note: %s is set and takes precedence over the stored credential\n", env)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cfg.Credentials(slog.Default())
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), maskedStatus(store.Status()))
			return nil
		},
	})

	return cmd
}
