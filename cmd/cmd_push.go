package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitdeps/internal/repository"
)

var errDefaultMessage = errors.New("refusing to push with the default commit message; pass -m or --yes")

func newPushCmd(a *app) *cobra.Command {
	var (
		message string
		branch  string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "push name",
		Short: "Commit every local change of a dependency and push it upstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				message = repository.DefaultCommitMessage
			}
			if repository.IsDefaultMessage(message) && !yes {
				return errDefaultMessage
			}
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			nt := tasks[0]
			p := &printer{out: cmd.OutOrStdout()}
			if !nt.task.TryPush(message, branch) {
				return repository.ErrInProgress
			}
			if !follow(cmd.Context(), p, nt.name, nt.task) {
				return errors.New("push failed for " + nt.name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to push to (default: the configured branch)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "push even with the default commit message")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove name...",
		Short: "Delete dependency checkouts from disk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.cfg.Select(args...)
			if err != nil {
				return err
			}
			p := &printer{out: cmd.OutOrStdout()}
			var errs []error
			for _, d := range deps {
				if err := a.registry.Remove(a.cfg.Identity(d)); err != nil {
					errs = append(errs, err)
					continue
				}
				p.printf("[%s] removed %s\n", d.Name, d.Folder)
			}
			return errors.Join(errs...)
		},
	}
}
