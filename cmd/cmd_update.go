package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update [name...]",
		Short: "Clone missing dependencies and reset existing ones to their remote ref",
		Long: "update clones every selected dependency that has no checkout yet and\n" +
			"hard-resets the others to the tip of their branch or tag. Untracked files\n" +
			"are kept. Dependencies are updated concurrently.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			return runConcurrently(cmd, tasks, "update", func(nt namedTask) bool {
				return nt.task.TryUpdate()
			})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear name...",
		Short: "Discard local changes, including untracked files, and reset to the remote ref",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			return runConcurrently(cmd, tasks, "clear", func(nt namedTask) bool {
				return nt.task.TryClearLocalChanges()
			})
		},
	}
}

// runConcurrently starts op on every task and follows them all. It fails when
// any operation was rejected or failed.
func runConcurrently(cmd *cobra.Command, tasks []namedTask, op string, start func(namedTask) bool) error {
	p := &printer{out: cmd.OutOrStdout()}
	results := make([]bool, len(tasks))
	var g errgroup.Group
	for i, nt := range tasks {
		if !start(nt) {
			p.printf("[%s] another operation is in progress\n", nt.name)
			continue
		}
		g.Go(func() error {
			results[i] = follow(cmd.Context(), p, nt.name, nt.task)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, ok := range results {
		if !ok {
			failed = append(failed, tasks[i].name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%s failed for %d of %d dependencies: %v", op, len(failed), len(tasks), failed)
	}
	return nil
}
