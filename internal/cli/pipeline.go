package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/urbex/api/internal/acquisition"
	"github.com/stwalsh4118/urbex/api/internal/app"
	"github.com/stwalsh4118/urbex/api/internal/geocode"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/pipeline"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Source string
	State  string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Run one local feed file through the pipeline",
		Long: `Reads property records from a JSON, JSON Lines or YAML file and merges
them into the canonical store under the given source name.

Example:
  urbex ingest --source TaxAssessor --state IL ./feeds/sangamon.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := acquisition.NewFileSource(opts.Source, args[0], opts.State)
			return runSources(cmd, opts.RootOptions, func(*app.App) ([]acquisition.Source, error) {
				return []acquisition.Source{src}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source name recorded on merged properties (required)")
	cmd.Flags().StringVar(&opts.State, "state", "", "state code for records that name none")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured source once",
		Long: `Runs the sources listed in the config file, followed by geocoding
enrichment when a geocoder is configured, and prints one line per source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd, rootOpts, func(a *app.App) ([]acquisition.Source, error) {
				sources, err := a.Sources()
				if err != nil {
					return nil, err
				}
				if len(sources) == 0 {
					return nil, errors.New("no sources configured")
				}
				return sources, nil
			})
		},
	}
}

// EnrichOptions holds flags for the enrich command.
type EnrichOptions struct {
	*RootOptions
	Limit int
}

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnrichOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Geocode stored properties that lack coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd, opts.RootOptions, func(a *app.App) ([]acquisition.Source, error) {
				src, err := a.EnrichSource(opts.Limit)
				if errors.Is(err, geocode.ErrDisabled) {
					return nil, errors.New("no geocoder configured; set GEOCODER_PROVIDER")
				}
				if err != nil {
					return nil, err
				}
				return []acquisition.Source{src}, nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum properties to geocode")

	return cmd
}

// runSources opens the store, runs the sources built by build and prints
// the report. Interrupts cancel the run between records.
func runSources(cmd *cobra.Command, opts *RootOptions, build func(*app.App) ([]acquisition.Source, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := build(a)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build sources", err)
	}

	report, err := a.Runner.Run(ctx, sources...)
	if err != nil {
		return WrapExitError(ExitCommandError, "pipeline run failed", err)
	}

	if err := printReport(formatter(cmd, opts), report); err != nil {
		return err
	}
	return reportError(report)
}

// RunSummary is the JSON form of a pipeline report.
type RunSummary struct {
	RunID   string          `json:"run_id"`
	Found   int             `json:"found"`
	Added   int             `json:"added"`
	Updated int             `json:"updated"`
	Errors  int             `json:"errors"`
	Sources []models.RunLog `json:"sources"`
}

func summarize(report *pipeline.Report) RunSummary {
	s := RunSummary{RunID: report.RunID, Sources: make([]models.RunLog, len(report.Sources))}
	s.Found, s.Added, s.Updated, s.Errors = report.Totals()
	for i, src := range report.Sources {
		s.Sources[i] = src.Log
	}
	return s
}

func printReport(out *OutputFormatter, report *pipeline.Report) error {
	s := summarize(report)
	if out.JSON() {
		return out.Encode(s)
	}

	rows := make([][]string, 0, len(report.Sources))
	for _, src := range report.Sources {
		rows = append(rows, []string{
			src.Log.SourceName,
			src.Log.Status,
			strconv.Itoa(src.Log.Found),
			strconv.Itoa(src.Log.Added),
			strconv.Itoa(src.Log.Updated),
			strconv.Itoa(src.Log.Errors),
			fmt.Sprintf("%.1fs", src.Log.DurationSeconds),
		})
	}
	if err := out.Table([]string{"SOURCE", "STATUS", "FOUND", "ADDED", "UPDATED", "ERRORS", "DURATION"}, rows); err != nil {
		return err
	}

	out.Printf("run %s: %d found, %d added, %d updated, %d errors\n", s.RunID, s.Found, s.Added, s.Updated, s.Errors)
	if out.Verbose {
		printRejections(out, report)
	}
	return nil
}

func printRejections(out *OutputFormatter, report *pipeline.Report) {
	for _, src := range report.Sources {
		if src.Err != nil {
			out.Printf("%s: %v\n", src.Log.SourceName, src.Err)
		}
		for _, item := range src.Items {
			if item.Err != nil {
				out.Printf("%s record %d: %s: %v\n", src.Log.SourceName, item.Index, item.Outcome, item.Err)
			}
		}
	}
}

// reportError returns an ExitFailure error when any source did not fully
// succeed.
func reportError(report *pipeline.Report) error {
	for _, src := range report.Sources {
		if src.Log.Status != models.RunStatusSuccess {
			return NewExitError(ExitFailure,
				fmt.Sprintf("source %s finished with status %s", src.Log.SourceName, src.Log.Status))
		}
	}
	return nil
}
