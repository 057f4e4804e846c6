package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitdeps/internal/credentials"
)

func newLoginCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:         "login host",
		Short:       "Store an access token for a git host in the system keyring",
		Long:        "login reads a token from standard input and stores it in the system keyring.\nSet auth.type to keyring in the config file to use it.",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "Token for %s: ", args[0])
			token, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && token == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}
			if err := credentials.NewKeyring(service).Store(args[0], token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", credentials.DefaultKeyringService, "keyring service name")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:         "logout host",
		Short:       "Delete the stored access token of a git host",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.NewKeyring(service).Forget(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed token for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", credentials.DefaultKeyringService, "keyring service name")
	return cmd
}
