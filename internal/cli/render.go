package cli

import (
	"fmt"
	"io"

	"github.com/roach88/convtest/internal/assertion"
	"github.com/roach88/convtest/internal/criteria"
	"github.com/roach88/convtest/internal/flow"
	"github.com/roach88/convtest/internal/harness"
)

var severityIcons = map[flow.Severity]string{
	flow.Critical: "‼",
	flow.Error:    "!",
	flow.Warning:  "⚠",
}

var criteriaIcons = map[criteria.Status]string{
	criteria.Met:     "✓",
	criteria.Unmet:   "✗",
	criteria.Invalid: "!",
	criteria.Skipped: "-",
}

// RenderRun writes a human-readable report of one run. Passing assertions
// are listed only when verbose is set.
func RenderRun(w io.Writer, r *harness.RunResult, verbose bool) {
	status := "PASSED"
	if !r.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s %s (%s) %s\n", statusIcon(r.Success), r.FlowName, r.FlowID, status)
	if verbose {
		fmt.Fprintf(w, "  run %s", r.RunID)
		if r.SessionID != "" {
			fmt.Fprintf(w, ", session %s", r.SessionID)
		}
		fmt.Fprintln(w)
	}

	for _, step := range r.Report.StepDetails {
		fmt.Fprintf(w, "  %s %s (%.0fms)\n", statusIcon(step.Passed), step.StepID, step.ExecutionTimeMs)
		renderAssertions(w, step, verbose)
	}

	s := r.Report.Summary
	fmt.Fprintf(w, "  Steps: %d/%d passed (%.1f%%), assertions: %d/%d passed",
		s.PassedSteps, s.TotalSteps, s.SuccessRate, s.PassedAssertions, s.TotalAssertions)
	if s.CriticalFailures+s.Errors+s.Warnings > 0 {
		fmt.Fprintf(w, ", %d critical, %d errors, %d warnings", s.CriticalFailures, s.Errors, s.Warnings)
	}
	fmt.Fprintf(w, ", %.0fms\n", r.DurationMs)

	if r.StoppedEarly {
		fmt.Fprintf(w, "  Stopped early: %s\n", r.StopReason)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}
	for _, c := range r.Criteria {
		fmt.Fprintf(w, "  %s criterion %s: %s", criteriaIcons[c.Status], c.Name, c.Status)
		if c.Detail != "" {
			fmt.Fprintf(w, " (%s)", c.Detail)
		}
		fmt.Fprintln(w)
	}
	if r.CriteriaMet != nil {
		if *r.CriteriaMet {
			fmt.Fprintln(w, "  Criteria: all met")
		} else {
			fmt.Fprintln(w, "  Criteria: not all met")
		}
	}
	if len(r.AudioFiles) > 0 {
		fmt.Fprintf(w, "  Audio: %d file(s)\n", len(r.AudioFiles))
		if verbose {
			for _, f := range r.AudioFiles {
				fmt.Fprintf(w, "    %s\n", f)
			}
		}
	}
}

func renderAssertions(w io.Writer, step assertion.StepDetail, verbose bool) {
	for _, a := range step.Assertions {
		if a.Passed {
			if verbose {
				fmt.Fprintf(w, "      %s\n", a.Message)
			}
			continue
		}
		fmt.Fprintf(w, "      %s %s: %s\n", severityIcons[a.Level], a.Level, a.Message)
	}
}

func statusIcon(passed bool) string {
	if passed {
		return "✓"
	}
	return "✗"
}
