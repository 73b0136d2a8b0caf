package assertion

import "github.com/roach88/convtest/internal/flow"

// Summary aggregates step verdicts.
type Summary struct {
	TotalSteps       int     `json:"total_steps"`
	PassedSteps      int     `json:"passed_steps"`
	FailedSteps      int     `json:"failed_steps"`
	SuccessRate      float64 `json:"success_rate"`
	TotalAssertions  int     `json:"total_assertions"`
	PassedAssertions int     `json:"passed_assertions"`
	FailedAssertions int     `json:"failed_assertions"`
	CriticalFailures int     `json:"critical_failures"`
	Errors           int     `json:"errors"`
	Warnings         int     `json:"warnings"`

	// FirstFailureStep is nil when every step passed.
	FirstFailureStep *string `json:"first_failure_step"`
}

// AssertionDetail is the flat report form of an AssertionResult.
type AssertionDetail struct {
	Field    string        `json:"field"`
	Operator flow.Operator `json:"operator"`
	Expected any           `json:"expected"`
	Actual   any           `json:"actual"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message"`
	Level    flow.Severity `json:"level"`
}

// StepDetail is the report form of a StepValidationResult.
type StepDetail struct {
	StepID           string            `json:"step_id"`
	Passed           bool              `json:"passed"`
	ExecutionTimeMs  float64           `json:"execution_time_ms"`
	CriticalFailures int               `json:"critical_failures"`
	Errors           int               `json:"errors"`
	Warnings         int               `json:"warnings"`
	Assertions       []AssertionDetail `json:"assertions"`
}

// Report is the aggregated outcome of a run.
type Report struct {
	Summary     Summary      `json:"summary"`
	StepDetails []StepDetail `json:"step_details"`
}

// GenerateReport aggregates results. The success rate is
// passed/total*100, or 0 when no step ran. The first failing step is
// reported regardless of whether execution stopped there.
func GenerateReport(results []StepValidationResult) Report {
	report := Report{StepDetails: make([]StepDetail, 0, len(results))}
	s := &report.Summary

	for _, r := range results {
		s.TotalSteps++
		if r.Passed {
			s.PassedSteps++
		} else if s.FirstFailureStep == nil {
			id := r.StepID
			s.FirstFailureStep = &id
		}
		s.CriticalFailures += r.CriticalCount
		s.Errors += r.ErrorCount
		s.Warnings += r.WarningCount

		detail := StepDetail{
			StepID:           r.StepID,
			Passed:           r.Passed,
			ExecutionTimeMs:  r.ExecutionTimeMs,
			CriticalFailures: r.CriticalCount,
			Errors:           r.ErrorCount,
			Warnings:         r.WarningCount,
			Assertions:       make([]AssertionDetail, 0, len(r.Assertions)),
		}
		for _, a := range r.Assertions {
			s.TotalAssertions++
			if a.Passed {
				s.PassedAssertions++
			}
			detail.Assertions = append(detail.Assertions, AssertionDetail{
				Field:    a.Rule.Field,
				Operator: a.Rule.Operator,
				Expected: a.ExpectedValue,
				Actual:   a.ActualValue,
				Passed:   a.Passed,
				Message:  a.Message,
				Level:    a.Severity,
			})
		}
		report.StepDetails = append(report.StepDetails, detail)
	}

	s.FailedSteps = s.TotalSteps - s.PassedSteps
	s.FailedAssertions = s.TotalAssertions - s.PassedAssertions
	if s.TotalSteps > 0 {
		s.SuccessRate = float64(s.PassedSteps) / float64(s.TotalSteps) * 100
	}
	return report
}

// Failed reports whether any step failed.
func (r Report) Failed() bool {
	return r.Summary.FailedSteps > 0
}
