package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/flow"
	"github.com/roach88/convtest/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script   string
	Database string

	// Clock and IDs override the harness defaults (for testing).
	Clock harness.Clock
	IDs   harness.IDGenerator
}

// RunSummary holds the outcome of every flow run by one invocation.
type RunSummary struct {
	Runs   []*harness.RunResult `json:"runs"`
	Passed int                  `json:"passed"`
	Failed int                  `json:"failed"`
	Total  int                  `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <flow-file>...",
		Short: "Run conversation flows against the agent",
		Long: `Run one or more flow files against the configured conversational backend.

Each flow gets its own session. Steps run in order; a failed critical
assertion stops the flow unless the step sets continue_on_failure.

Exit codes:
  0 - All flows passed
  1 - One or more flows failed
  2 - Command error (missing file, invalid config, etc.)

Examples:
  convtest run flows/booking.json
  convtest run --script replies.yaml flows/*.yaml
  convtest run --db convtest.db --format json flows/booking.cue`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlows(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "answer turns from a YAML script instead of the configured backend")
	cmd.Flags().StringVar(&opts.Database, "db", "", "save run reports to this SQLite database")

	return cmd
}

func runFlows(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	// Load every flow before running any, so a typo fails fast.
	parser := flow.NewParser(logger)
	flows := make([]*flow.FlowDefinition, 0, len(paths))
	for _, path := range paths {
		f, err := LoadFlow(path, parser)
		if err != nil {
			_ = formatter.Error(loadErrorCode(err), err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "failed to load flow", err)
		}
		formatter.VerboseLog("Loaded flow %s from %s (%d steps)", f.FlowID, path, len(f.Steps))
		flows = append(flows, f)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	w, err := buildHarness(ctx, cfg, harnessOverrides{
		Script: opts.Script,
		Clock:  opts.Clock,
		IDs:    opts.IDs,
	}, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to set up harness", err)
	}
	defer w.Close()

	st, err := openStore(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	summary := RunSummary{
		Runs:  make([]*harness.RunResult, 0, len(flows)),
		Total: len(flows),
	}
	for i, f := range flows {
		result, err := w.harness.Run(ctx, f)
		if err != nil {
			_ = formatter.Error(ErrCodeStructure, err.Error(), map[string]string{"file": paths[i]})
			return WrapExitError(ExitCommandError, "failed to run flow", err)
		}
		if st != nil {
			if err := st.SaveRun(ctx, result); err != nil {
				logger.Error("failed to save run", "run", result.RunID, "error", err)
			}
		}

		summary.Runs = append(summary.Runs, result)
		if result.Success {
			summary.Passed++
		} else {
			summary.Failed++
		}
		logRun(logger, result)
	}

	if opts.Format == "json" {
		return outputRunJSON(formatter, summary)
	}
	return outputRunText(formatter, summary)
}

func logRun(logger *slog.Logger, r *harness.RunResult) {
	logger.Debug("flow finished",
		"run", r.RunID,
		"flow", r.FlowID,
		"success", r.Success,
		"steps", len(r.Steps),
		"duration_ms", r.DurationMs,
	)
}

// outputRunJSON outputs the run summary as JSON.
func outputRunJSON(formatter *OutputFormatter, summary RunSummary) error {
	resp := CLIResponse{Data: summary}
	if len(summary.Runs) == 1 {
		resp.RunID = summary.Runs[0].RunID
	}
	if summary.Failed > 0 {
		resp.Error = &CLIError{
			Code:    ErrCodeRunFailed,
			Message: fmt.Sprintf("%d flow(s) failed", summary.Failed),
		}
	}
	if err := formatter.Respond(resp); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d flow(s) failed", summary.Failed))
	}
	return nil
}

// outputRunText outputs every run report followed by a summary line.
func outputRunText(formatter *OutputFormatter, summary RunSummary) error {
	w := formatter.Writer
	for _, r := range summary.Runs {
		RenderRun(w, r, formatter.Verbose)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Run Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d flow(s) failed", summary.Failed))
	}

	fmt.Fprintln(w, "✓ All flows passed")
	return nil
}
