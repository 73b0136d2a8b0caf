package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/harness"
	"github.com/roach88/convtest/internal/store"
)

// ReportOptions holds flags for the report commands.
type ReportOptions struct {
	*RootOptions
	Database string
	FlowID   string
	Limit    int
}

// StepHistory is how often one step passed across stored runs of its flow.
type StepHistory struct {
	StepID string `json:"step_id"`
	Passed int    `json:"passed"`
	Total  int    `json:"total"`
}

// RunDetail is the output of report show.
type RunDetail struct {
	Run     *harness.RunResult `json:"run"`
	History []StepHistory      `json:"history"`
}

// NewReportCommand creates the report command and its list/show children.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect stored run reports",
		Long: `List and show run reports saved with "convtest run --db" or by the
HTTP server.

Examples:
  convtest report list --db convtest.db --flow booking
  convtest report show --db convtest.db 01936f2e-...`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.FlowID, "flow", "", "only runs of this flow id")
	list.Flags().IntVar(&opts.Limit, "limit", store.DefaultListLimit, "maximum number of runs")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one stored run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportShow(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// openReportStore opens an existing database. Reports are never written
// here, so a missing file is an error rather than a new empty database.
func openReportStore(opts *ReportOptions, formatter *OutputFormatter) (*store.Store, error) {
	path := opts.Database
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return nil, err
		}
		path = cfg.Store.Path
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		msg := fmt.Sprintf("database not found: %s", path)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return nil, NewExitError(ExitCommandError, msg)
	}

	st, err := openStore(path)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return nil, err
	}
	return st, nil
}

func runReportList(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openReportStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), store.ListOptions{FlowID: opts.FlowID, Limit: opts.Limit})
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return formatter.Respond(CLIResponse{Data: runs})
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s %s  %s  %s  %d/%d steps  %.0fms\n",
			statusIcon(r.Success), r.RunID, r.StartTime.Format("2006-01-02 15:04:05"),
			r.FlowID, r.PassedSteps, r.TotalSteps, r.DurationMs)
	}
	fmt.Fprintf(w, "\n%d run(s)\n", len(runs))
	return nil
}

func runReportShow(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openReportStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	run, err := st.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}

	detail := RunDetail{Run: run, History: make([]StepHistory, 0, len(run.Steps))}
	for _, step := range run.Steps {
		passed, total, err := st.StepPassRate(ctx, run.FlowID, step.StepID)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load step history", err)
		}
		detail.History = append(detail.History, StepHistory{StepID: step.StepID, Passed: passed, Total: total})
	}

	if opts.Format == "json" {
		return formatter.Respond(CLIResponse{Data: detail, RunID: run.RunID})
	}

	RenderRun(formatter.Writer, run, opts.Verbose)
	if len(detail.History) > 0 {
		fmt.Fprintln(formatter.Writer, "  History:")
		for _, h := range detail.History {
			fmt.Fprintf(formatter.Writer, "    %s: %d/%d passed\n", h.StepID, h.Passed, h.Total)
		}
	}
	return nil
}
