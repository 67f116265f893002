package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/checkupjs/checkup/pkg/engine"
)

// BuildInfo describes the binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string

	// LogLevel is the level telemetry loggers use.
	LogLevel string
}

// Execute runs the root command and returns the process exit code. Errors
// are rendered as CheckupErrors on stderr.
func Execute(ctx context.Context, info BuildInfo) int {
	rootCmd := newRootCommand(info)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	text, code := engine.AsCheckupError(err).Render(engine.RenderOptions{Version: info.Version})
	fmt.Fprintln(os.Stderr, text)
	return code
}

func newRootCommand(info BuildInfo) *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "checkup [paths...]",
		Short: "Checkup - a health checkup for your project",
		Long: `Checkup runs a configurable set of tasks over a project and reports
the results, together with actions recommending what to improve.

Tasks come from the plugins listed in .checkuprc. Running checkup without a
subcommand is the same as "checkup run".`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckup(cmd, info, opts, args)
		},
	}
	addRunFlags(rootCmd, opts)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return engine.NewCheckupError(engine.ErrorKindInvalidFlags, engine.ErrorOptions{Reason: err.Error()})
	})

	rootCmd.AddCommand(newRunCommand(info))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand(info))

	return rootCmd
}
