package cli

import (
	"bytes"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/urbex/api/internal/export"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate counts over the canonical store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Properties.Statistics(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to compute statistics", err)
			}

			out := formatter(cmd, rootOpts)
			if out.JSON() {
				return out.Encode(st)
			}
			return out.Table([]string{"METRIC", "COUNT"}, [][]string{
				{"total", strconv.FormatInt(st.Total, 10)},
				{"abandoned", strconv.FormatInt(st.Abandoned, 10)},
				{"foreclosed", strconv.FormatInt(st.Foreclosed, 10)},
				{"tax_delinquent", strconv.FormatInt(st.TaxDelinquent, 10)},
				{"high_score", strconv.FormatInt(st.HighScore, 10)},
			})
		},
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output   string
	State    string
	County   string
	City     string
	Status   string
	MinScore int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export canonical properties as CSV",
		Long: `Writes every matching canonical property as CSV, highest abandonment
score first. The --format flag does not apply; output is always CSV.

Example:
  urbex export --state IL --min-score 7 -o high_score.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			props, err := a.Properties.ListProperties(cmd.Context(), repository.ListFilter{
				State:    opts.State,
				County:   opts.County,
				City:     opts.City,
				Status:   opts.Status,
				MinScore: opts.MinScore,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list properties", err)
			}

			var buf bytes.Buffer
			if err := export.WriteCSV(&buf, models.Summaries(props)); err != nil {
				return WrapExitError(ExitFailure, "failed to encode CSV", err)
			}

			if opts.Output == "" || opts.Output == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write export", err)
			}
			a.Log.Info("Export written", map[string]interface{}{
				"path":       opts.Output,
				"properties": len(props),
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.State, "state", "", "only properties in this state")
	cmd.Flags().StringVar(&opts.County, "county", "", "only properties in this county")
	cmd.Flags().StringVar(&opts.City, "city", "", "only properties in this city")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only properties with this status")
	cmd.Flags().IntVar(&opts.MinScore, "min-score", 0, "minimum abandonment score")

	return cmd
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent run logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.Properties.RunLogs(cmd.Context(), opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list run logs", err)
			}

			out := formatter(cmd, opts.RootOptions)
			if out.JSON() {
				return out.Encode(logs)
			}

			rows := make([][]string, 0, len(logs))
			for _, l := range logs {
				rows = append(rows, []string{
					l.StartedAt.Format("2006-01-02 15:04:05"),
					l.RunID,
					l.SourceName,
					l.Status,
					strconv.Itoa(l.Found),
					strconv.Itoa(l.Added),
					strconv.Itoa(l.Updated),
					strconv.Itoa(l.Errors),
				})
			}
			return out.Table([]string{"STARTED", "RUN", "SOURCE", "STATUS", "FOUND", "ADDED", "UPDATED", "ERRORS"}, rows)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of run logs to show")

	return cmd
}
