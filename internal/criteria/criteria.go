// Package criteria evaluates a flow's success criteria against a finished
// run's report.
//
// Each criterion with a string value is an expr expression over the report
// metrics, for example:
//
//	success_criteria:
//	  all_steps: "failed_steps == 0"
//	  fast: "max_execution_time_ms < 2000"
//
// Outcomes are advisory: they are reported next to the run verdict but never
// change it. Criteria with non-string values are reported as skipped.
package criteria

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"

	"github.com/roach88/convtest/internal/assertion"
)

// Status of one criterion.
type Status string

const (
	Met     Status = "met"
	Unmet   Status = "unmet"
	Invalid Status = "error"
	Skipped Status = "skipped"
)

// Outcome is the result of one criterion.
type Outcome struct {
	Name       string `json:"name"`
	Expression string `json:"expression,omitempty"`
	Status     Status `json:"status"`
	Detail     string `json:"detail,omitempty"`
}

// Env returns the variables criteria expressions can reference.
func Env(report assertion.Report) map[string]any {
	s := report.Summary

	var total, slowest float64
	for _, d := range report.StepDetails {
		total += d.ExecutionTimeMs
		if d.ExecutionTimeMs > slowest {
			slowest = d.ExecutionTimeMs
		}
	}
	avg := 0.0
	if n := len(report.StepDetails); n > 0 {
		avg = total / float64(n)
	}

	return map[string]any{
		"total_steps":               s.TotalSteps,
		"passed_steps":              s.PassedSteps,
		"failed_steps":              s.FailedSteps,
		"success_rate":              s.SuccessRate,
		"total_assertions":          s.TotalAssertions,
		"passed_assertions":         s.PassedAssertions,
		"failed_assertions":         s.FailedAssertions,
		"critical_failures":         s.CriticalFailures,
		"errors":                    s.Errors,
		"warnings":                  s.Warnings,
		"average_execution_time_ms": avg,
		"max_execution_time_ms":     slowest,
	}
}

// Evaluate checks every criterion, sorted by name.
func Evaluate(criteria map[string]any, report assertion.Report) []Outcome {
	names := make([]string, 0, len(criteria))
	for name := range criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	env := Env(report)
	outcomes := make([]Outcome, 0, len(names))
	for _, name := range names {
		outcomes = append(outcomes, evaluateOne(name, criteria[name], env))
	}
	return outcomes
}

func evaluateOne(name string, value any, env map[string]any) Outcome {
	expression, ok := value.(string)
	if !ok {
		return Outcome{Name: name, Status: Skipped, Detail: fmt.Sprintf("not an expression: %v", value)}
	}
	out := Outcome{Name: name, Expression: expression}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		out.Status = Invalid
		out.Detail = err.Error()
		return out
	}
	result, err := expr.Run(program, env)
	if err != nil {
		out.Status = Invalid
		out.Detail = err.Error()
		return out
	}

	if met, _ := result.(bool); met {
		out.Status = Met
	} else {
		out.Status = Unmet
	}
	return out
}

// AllMet reports whether every evaluated criterion was met. Skipped criteria
// are ignored.
func AllMet(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == Unmet || o.Status == Invalid {
			return false
		}
	}
	return true
}
