// Package cli implements the urbex command line: one-shot pipeline runs,
// enrichment and reports against the configured store.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/urbex/api/internal/app"
	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the urbex CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "urbex",
		Short: "Distressed property discovery pipeline",
		Long: `Collects property records from public-records feeds, reconciles them
into one canonical record per property, scores each for likely abandonment
and reports on the result.

Store, geocoder and source settings come from the environment and, when
CONFIG_FILE is set, from a YAML config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewEnrichCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openApp loads configuration and opens the store. Logs go to stderr so
// they never mix with command output.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	env := cfg.Server.Env
	if opts.Verbose {
		env = "development"
	}
	log := logger.NewWithWriter(env, cmd.ErrOrStderr()).WithComponent("cli")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return a, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}
