// Package assertion evaluates validation rules against turn-result records
// and aggregates per-step verdicts into a report.
package assertion

import (
	"log/slog"

	"github.com/roach88/convtest/internal/fieldpath"
	"github.com/roach88/convtest/internal/flow"
)

// AssertionResult is the outcome of one rule against one record.
type AssertionResult struct {
	Rule          flow.ValidationRule `json:"rule"`
	Passed        bool                `json:"passed"`
	ActualValue   any                 `json:"actual_value"`
	ExpectedValue any                 `json:"expected_value"`
	Message       string              `json:"message"`
	Severity      flow.Severity       `json:"severity"`
}

// StepValidationResult is the verdict for one step.
//
// Passed holds exactly when no critical or error assertion failed. ShouldStop
// is set only when a critical assertion failed and the step does not
// continue on failure.
type StepValidationResult struct {
	StepID          string            `json:"step_id"`
	Passed          bool              `json:"passed"`
	Assertions      []AssertionResult `json:"assertions"`
	CriticalCount   int               `json:"critical_failures"`
	ErrorCount      int               `json:"errors"`
	WarningCount    int               `json:"warnings"`
	ExecutionTimeMs float64           `json:"execution_time_ms"`
	ShouldStop      bool              `json:"should_stop"`
}

// Validator evaluates rule lists. It holds no per-run state and is safe for
// concurrent use.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator logging to logger (nil means
// slog.Default()).
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// ValidateStep evaluates every rule against record, in order. Every rule is
// evaluated even after a critical failure, so the result always lists all
// assertions.
func (v *Validator) ValidateStep(record map[string]any, rules []flow.ValidationRule, continueOnFailure bool) StepValidationResult {
	result := StepValidationResult{
		StepID:     "unknown",
		Assertions: make([]AssertionResult, 0, len(rules)),
	}
	if id, ok := record["step_id"].(string); ok && id != "" {
		result.StepID = id
	}
	if ms, ok := number(record["execution_time_ms"]); ok {
		result.ExecutionTimeMs = ms
	}

	for _, rule := range rules {
		a := v.validateRule(record, rule)
		result.Assertions = append(result.Assertions, a)
		if a.Passed {
			continue
		}

		switch a.Severity {
		case flow.Critical:
			result.CriticalCount++
			if !continueOnFailure {
				result.ShouldStop = true
			}
			v.logger.Error("critical assertion failed", "step", result.StepID, "field", rule.Field, "message", a.Message)
		case flow.Error:
			result.ErrorCount++
			v.logger.Error("assertion failed", "step", result.StepID, "field", rule.Field, "message", a.Message)
		default:
			result.WarningCount++
			v.logger.Warn("assertion warning", "step", result.StepID, "field", rule.Field, "message", a.Message)
		}
	}

	result.Passed = result.CriticalCount == 0 && result.ErrorCount == 0
	return result
}

func (v *Validator) validateRule(record map[string]any, rule flow.ValidationRule) AssertionResult {
	actual := fieldpath.Extract(record, rule.Field)
	passed := evaluate(v.logger, actual, rule.Expected, rule.Operator)

	msg := rule.Message
	if msg == "" {
		msg = DefaultMessage(rule.Field, actual, rule.Expected, rule.Operator, passed)
	}

	return AssertionResult{
		Rule:          rule,
		Passed:        passed,
		ActualValue:   actual,
		ExpectedValue: rule.Expected,
		Message:       msg,
		Severity:      rule.Severity,
	}
}
