package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/checkupjs/checkup/pkg/config"
	"github.com/checkupjs/checkup/pkg/engine"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the checkup config",
	}
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var plugins []string

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default .checkuprc",
		Long: `Write a default .checkuprc into dir, or the current directory.

An existing config is never overwritten.`,
		Example: `  # Create .checkuprc in the current directory
  checkup config init

  # Create a config enabling the javascript plugin
  checkup config init ./my-app --plugin javascript`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			} else if wd, err := os.Getwd(); err == nil {
				dir = wd
			}

			var overrides *engine.Config
			if len(plugins) > 0 {
				overrides = &engine.Config{Plugins: config.NormalizePluginNames(plugins)}
			}

			path, err := config.WriteConfig(dir, overrides)
			if err != nil {
				return err
			}

			log.Debug().Str("path", path).Msg("Config written")
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&plugins, "plugin", "p", nil, "plugin to enable (repeatable)")
	return cmd
}
