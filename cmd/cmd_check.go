package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newCheckCmd(a *app) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "check [name...]",
		Short: "Verify that every remote still exposes the tracked branch or tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			errs := make([]error, len(tasks))
			var g errgroup.Group
			if jobs < 1 {
				jobs = -1
			}
			g.SetLimit(jobs)
			for i, nt := range tasks {
				g.Go(func() error {
					errs[i] = nt.task.CheckRemote()
					return nil
				})
			}
			_ = g.Wait()

			p := &printer{out: cmd.OutOrStdout()}
			var failed []error
			for i, nt := range tasks {
				if errs[i] != nil {
					p.printf("[%s] error: %v\n", nt.name, errs[i])
					failed = append(failed, fmt.Errorf("%s: %w", nt.name, errs[i]))
					continue
				}
				p.printf("[%s] ok %s\n", nt.name, nt.task.Identity().Ref())
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "number of concurrent remote checks")
	return cmd
}
