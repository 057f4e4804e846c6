package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [name...]",
		Short: "Show local changes in the dependency checkouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			type result struct {
				entries []backend.StatusEntry
				ok      bool
			}
			results := make([]result, len(tasks))
			var g errgroup.Group
			for i, nt := range tasks {
				g.Go(func() error {
					entries, ok := nt.task.BlockAndUpdateStatus()
					results[i] = result{entries, ok}
					return nil
				})
			}
			_ = g.Wait()

			p := &printer{out: cmd.OutOrStdout()}
			var failed []string
			for i, nt := range tasks {
				r := results[i]
				if !r.ok {
					failed = append(failed, nt.name)
					if nt.task.InProgress() {
						p.printf("%s: another operation is in progress\n", nt.name)
						continue
					}
					e, _ := nt.task.Progress().Last()
					p.printf("%s: %s\n", nt.name, e.Message)
					continue
				}
				e, _ := nt.task.Progress().Last()
				p.printf("%s: %s\n", nt.name, e.Message)
				for _, entry := range r.entries {
					p.printf("  %s %s\n", entry.Code, entry.Path)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("status failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
