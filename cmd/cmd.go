package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitdeps/internal/config"
	"github.com/thiagokokada/gitdeps/internal/credentials"
	"github.com/thiagokokada/gitdeps/internal/git"
	"github.com/thiagokokada/gitdeps/internal/git/backend"
	"github.com/thiagokokada/gitdeps/internal/logging"
	"github.com/thiagokokada/gitdeps/internal/metrics"
	"github.com/thiagokokada/gitdeps/internal/repository"
)

// skipConfig marks commands that run without a dependency list.
const skipConfig = "gitdeps/skip-config"

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	root := newRootCmd(&app{})
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

type rootFlags struct {
	config    string
	root      string
	logLevel  string
	logFormat string
	verbose   bool
}

// app is the state shared by subcommands once the root command set it up.
type app struct {
	flags rootFlags
	cfg   config.Config

	backend  backend.Backend
	registry *repository.Registry
	metrics  *prometheus.Registry
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gitdeps",
		Short: "Vendor git repositories into a project and keep them in sync",
		Long: "gitdeps clones the git repositories listed in gitdeps.yaml (or gitdeps.toml)\n" +
			"into the project, keeping their metadata hidden so the host repository\n" +
			"tracks their files as its own.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.flags.config, "config", "c", "", "config file (default: gitdeps.yaml, gitdeps.yml or gitdeps.toml in the current directory)")
	f.StringVar(&a.flags.root, "root", "", "directory holding the checkouts (overrides the config file)")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&a.flags.logFormat, "log-format", "", "log format: text or json")
	f.BoolVarP(&a.flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newUpdateCmd(a),
		newStatusCmd(a),
		newPushCmd(a),
		newClearCmd(a),
		newRemoveCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newLoginCmd(),
		newLogoutCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	env, err := config.LoadEnv(ctx, nil)
	if err != nil {
		return err
	}

	levelName := firstNonEmpty(a.flags.logLevel, env.LogLevel)
	if a.flags.verbose {
		levelName = "debug"
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	if err := logging.Init(level, firstNonEmpty(a.flags.logFormat, env.LogFormat), cmd.ErrOrStderr()); err != nil {
		return err
	}

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	path := firstNonEmpty(a.flags.config, env.Config)
	if path == "" {
		if path, err = config.Find("."); err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(env)
	if a.flags.root != "" {
		cfg.Root = a.flags.root
	}
	a.cfg = cfg
	slog.Debug("loaded config",
		slog.String("path", path),
		slog.String("root", cfg.Root),
		slog.Int("dependencies", len(cfg.Dependencies)),
	)

	credCfg, err := cfg.Credentials(nil)
	if err != nil {
		return err
	}
	creds, err := credentials.New(credCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	b, err := git.NewBackend(backend.WithDepth(*cfg.Depth))
	if err != nil {
		return err
	}
	a.backend = b
	a.metrics = prometheus.NewRegistry()
	opts := []repository.Option{
		repository.WithObserver(metrics.New(a.metrics, b.Name())),
		repository.WithLogger(logging.New("repository")),
	}
	if creds != nil {
		opts = append(opts, repository.WithCredentials(creds))
	}
	a.registry = repository.NewRegistry(b, opts...)
	return nil
}

type namedTask struct {
	name string
	task *repository.Task
}

// tasks returns the tasks of the named dependencies, or of all of them.
func (a *app) tasks(names []string) ([]namedTask, error) {
	deps, err := a.cfg.Select(names...)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, fmt.Errorf("no dependencies configured")
	}
	out := make([]namedTask, 0, len(deps))
	for _, d := range deps {
		t, err := a.registry.Get(a.cfg.Identity(d))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		out = append(out, namedTask{name: d.Name, task: t})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
