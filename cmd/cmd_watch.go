package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitdeps/internal/metrics"
	"github.com/thiagokokada/gitdeps/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		delay       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [name...]",
		Short: "Report local changes in the checkouts as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tasks, err := a.tasks(args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(a.cfg.Root, 0o755); err != nil {
				return err
			}

			byFolder := make(map[string]namedTask, len(tasks))
			folders := make([]string, 0, len(tasks))
			for _, nt := range tasks {
				folder := nt.task.Identity().Key().Folder
				byFolder[folder] = nt
				folders = append(folders, folder)
			}

			p := &printer{out: cmd.OutOrStdout()}
			onChange := func(folder string) {
				nt, ok := byFolder[folder]
				if !ok {
					return
				}
				if !nt.task.TryStatus() {
					slog.Debug("status skipped, task busy", slog.String("dependency", nt.name))
					return
				}
				go reportStatus(ctx, p, nt)
			}
			w, err := watch.New(a.cfg.Root, folders, onChange, watch.WithDelay(delay))
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, metricsAddr, a)
				if err != nil {
					return errors.Join(err, w.Close())
				}
				defer stop()
			}

			slog.Info("watching dependencies", slog.String("root", a.cfg.Root), slog.Int("count", len(folders)))
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "quiet period before a change is reported")
	return cmd
}

func reportStatus(ctx context.Context, p *printer, nt namedTask) {
	if err := nt.task.Wait(ctx); err != nil {
		return
	}
	e, _ := nt.task.Progress().Last()
	if !nt.task.LastOperationSuccess() {
		p.printf("[%s] error: %s\n", nt.name, e.Message)
		return
	}
	p.printf("[%s] %s\n", nt.name, e.Message)
	entries, _ := nt.task.LastStatus()
	for _, entry := range entries {
		p.printf("  %s %s\n", entry.Code, entry.Path)
	}
}

// serveMetrics starts the metrics endpoint and returns a function that shuts
// it down.
func serveMetrics(ctx context.Context, addr string, a *app) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.metrics))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", slog.Any("error", err))
		}
	}()
	slog.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

