package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/checkupjs/checkup/pkg/checkup"
	"github.com/checkupjs/checkup/pkg/config"
	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/policy"
	"github.com/checkupjs/checkup/pkg/report"
	"github.com/checkupjs/checkup/pkg/stores"
	"github.com/checkupjs/checkup/pkg/telemetry"
)

// runOptions holds the run flags shared by the root and run commands.
type runOptions struct {
	tasks        []string
	configPath   string
	cwd          string
	excludePaths []string
	listTasks    bool
	format       string
	outputFile   string

	history       string
	metricsFile   string
	metricsListen string
	trace         string
	rules         []string
	watch         bool
	maxParallel   int
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.tasks, "task", "t", nil, "run only the named task (repeatable)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path or URL")
	flags.StringVarP(&opts.cwd, "cwd", "d", "", "directory to run in (default: current directory)")
	flags.StringArrayVarP(&opts.excludePaths, "excludePaths", "e", nil, "glob of paths to exclude (repeatable, overrides config)")
	flags.BoolVarP(&opts.listTasks, "listTasks", "l", false, "list registered tasks and exit")
	flags.StringVarP(&opts.format, "format", "f", string(engine.OutputFormatSummary), "output format (summary, json, yaml)")
	flags.StringVarP(&opts.outputFile, "outputFile", "o", "", "write the report to a file (requires --format json or yaml)")

	flags.StringVar(&opts.history, "history", "", "record the run in this SQLite database")
	flags.StringVar(&opts.metricsFile, "metrics", "", "write Prometheus metrics to this file after each run")
	flags.StringVar(&opts.metricsListen, "metricsListen", "", "serve Prometheus metrics on this address")
	flags.StringVar(&opts.trace, "trace", "none", "trace exporter (none, stdout, otlp)")
	flags.StringArrayVar(&opts.rules, "rules", nil, "file or directory of .rego/.star action rules (repeatable)")
	flags.BoolVar(&opts.watch, "watch", false, "re-run when the config or action rules change")
	flags.IntVar(&opts.maxParallel, "maxParallel", 0, "maximum tasks run concurrently (default 10)")
}

func (o *runOptions) runFlags() engine.RunFlags {
	return engine.RunFlags{
		Cwd:          o.cwd,
		Config:       o.configPath,
		Tasks:        o.tasks,
		ExcludePaths: o.excludePaths,
		Format:       engine.OutputFormat(o.format),
		OutputFile:   o.outputFile,
		ListTasks:    o.listTasks,
	}
}

func newRunCommand(info BuildInfo) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run a checkup",
		Long: `Run the configured tasks over the given paths, or the whole project,
evaluate actions against the results and print a report.`,
		Example: `  # Run every task and print a summary
  checkup run

  # Run one task over a sub-directory and emit JSON
  checkup run src --task javascript/eslint-disables --format json

  # Record history and re-run whenever .checkuprc changes
  checkup run --history .checkup/history.db --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckup(cmd, info, opts, args)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

// runCheckup wires telemetry and history around a session and runs it,
// once or in watch mode.
func runCheckup(cmd *cobra.Command, info BuildInfo, opts *runOptions, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	flags := opts.runFlags()
	if err := flags.Validate(); err != nil {
		return err
	}

	tel, err := newTelemetry(info, opts)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	if server := tel.Metrics.StartMetricsServer(tel.Logger.Zerolog()); server != nil {
		defer server.Close()
	}

	var store stores.Store
	if opts.history != "" {
		sqlite, err := openHistory(ctx, opts.history)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		store = sqlite
	}

	session := checkup.NewSession(checkup.Options{
		Flags:       flags,
		Args:        args,
		Version:     info.Version,
		RulePaths:   opts.rules,
		Telemetry:   tel,
		Store:       store,
		MaxParallel: opts.maxParallel,
	})

	res, err := runOnce(ctx, out, session, tel, opts)
	if !opts.watch || flags.ListTasks {
		return err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, renderError(err, info))
	}

	configPath := ""
	if res != nil && !config.IsRemote(res.ConfigPath) {
		configPath = res.ConfigPath
	}
	return watch(ctx, out, session, tel, opts, info, configPath)
}

// runOnce runs the session and writes its report, then the metrics textfile.
func runOnce(ctx context.Context, w io.Writer, session *checkup.Session, tel *telemetry.Telemetry, opts *runOptions) (*checkup.Result, error) {
	res, runErr := session.Run(ctx)

	if res != nil && opts.listTasks {
		for _, name := range res.TaskNames {
			fmt.Fprintln(w, name)
		}
	}

	if res != nil && res.Output != nil {
		path, err := report.Write(w, res.Output, report.Options{
			TaskReporters: res.Reporters,
			NoColor:       os.Getenv("NO_COLOR") != "",
		})
		if err != nil {
			return res, fmt.Errorf("failed to write report: %w", err)
		}
		if path != "" {
			fmt.Fprintf(os.Stderr, "Results have been saved to %s\n", path)
		}
	}

	if opts.metricsFile != "" {
		if err := tel.Metrics.WriteTextfile(opts.metricsFile); err != nil {
			log.Warn().Err(err).Str("path", opts.metricsFile).Msg("Failed to write metrics")
		}
	}

	return res, runErr
}

// watch re-runs the session whenever the config or a rule file changes. It
// blocks until ctx is done.
func watch(ctx context.Context, w io.Writer, session *checkup.Session, tel *telemetry.Telemetry, opts *runOptions, info BuildInfo, configPath string) error {
	logger := tel.Logger.NewComponentLogger("watch").Zerolog()
	rerun := make(chan struct{}, 1)
	trigger := func() {
		select {
		case rerun <- struct{}{}:
		default:
		}
	}

	subscribeWatchEvents(tel.Events, os.Stderr, trigger)

	g, gctx := errgroup.WithContext(ctx)

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, logger, func(_ *engine.Config, err error) {
				if err != nil {
					return
				}
				tel.Events.PublishConfigReloaded(configPath)
			})
		})
	}

	if len(opts.rules) > 0 {
		g.Go(func() error {
			return policy.NewLoader(logger).Watch(gctx, opts.rules, func(rules []policy.ActionRule) error {
				if err := session.ApplyRules(gctx, rules); err != nil {
					return err
				}
				tel.Events.PublishRulesReloaded(len(rules))
				return nil
			})
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-rerun:
				logger.Info().Msg("Change detected, re-running checkup")
				if _, err := runOnce(gctx, w, session, tel, opts); err != nil {
					fmt.Fprintln(os.Stderr, renderError(err, info))
				}
			}
		}
	})

	logger.Info().Str("config", configPath).Strs("rules", opts.rules).Msg("Watching for changes")
	return g.Wait()
}

// subscribeWatchEvents prints reload and run outcome events to w and calls
// rerun for every reload. rerun must not block.
func subscribeWatchEvents(events *telemetry.EventPublisher, w io.Writer, rerun func()) {
	if events == nil {
		return
	}
	events.Subscribe(func(e telemetry.Event) {
		fmt.Fprintln(w, e.Message)
		switch e.Type {
		case telemetry.EventTypeConfigReloaded, telemetry.EventTypeRulesReloaded:
			rerun()
		}
	}, telemetry.FilterByType(
		telemetry.EventTypeConfigReloaded,
		telemetry.EventTypeRulesReloaded,
		telemetry.EventTypeRunCompleted,
		telemetry.EventTypeRunFailed,
	))
}

func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate history %s: %w", path, err)
	}
	return store, nil
}

func newTelemetry(info BuildInfo, opts *runOptions) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = info.Version
	cfg.Logging.Level = telemetry.ParseLogLevel(info.LogLevel).String()
	if info.LogLevel == "" {
		cfg.Logging.Level = "warn"
	}

	switch opts.trace {
	case "", "none":
	case "stdout", "otlp":
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = opts.trace
	default:
		return nil, engine.NewCheckupError(engine.ErrorKindInvalidFlags, engine.ErrorOptions{
			Reason: fmt.Sprintf("Unknown --trace %q", opts.trace),
		})
	}

	// Watch mode reruns on reload events.
	if opts.watch {
		cfg.Events.Enabled = true
	}

	if opts.metricsFile != "" || opts.metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = opts.metricsListen
	}

	return telemetry.NewTelemetry(cfg)
}

func renderError(err error, info BuildInfo) string {
	text, _ := engine.AsCheckupError(err).Render(engine.RenderOptions{Version: info.Version})
	return text
}
