package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitdeps/internal/buildinfo"
	"github.com/thiagokokada/gitdeps/internal/git"
	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gitdeps %s\n", buildinfo.Read(git.BackendName))
			if v, err := backend.GitVersion(); err == nil {
				fmt.Fprintf(out, "%s (minimum %s)\n", v, backend.MinGitVersion())
			}
			return nil
		},
	}
}
