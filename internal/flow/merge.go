package flow

import (
	"fmt"
	"maps"
	"strings"
)

// MergeFlows layers override on top of base and returns a new flow.
//
// Override steps replace base steps with the same id in place; the rest are
// appended. Global rules are concatenated (base first). Success criteria and
// metadata merge key-wise with override winning. Description and agent
// reference fall back to base when the override leaves them empty. Flow id,
// name and language always come from override.
//
// Neither input is modified.
func MergeFlows(base, override *FlowDefinition) *FlowDefinition {
	steps := make([]FlowStep, len(base.Steps), len(base.Steps)+len(override.Steps))
	copy(steps, base.Steps)
	for _, step := range override.Steps {
		replaced := false
		for i := range steps {
			if steps[i].StepID == step.StepID {
				steps[i] = step
				replaced = true
				break
			}
		}
		if !replaced {
			steps = append(steps, step)
		}
	}

	globals := make([]ValidationRule, 0, len(base.GlobalRules)+len(override.GlobalRules))
	globals = append(globals, base.GlobalRules...)
	globals = append(globals, override.GlobalRules...)

	merged := &FlowDefinition{
		FlowID:          override.FlowID,
		FlowName:        override.FlowName,
		Description:     firstNonEmpty(override.Description, base.Description),
		AgentRef:        firstNonEmpty(override.AgentRef, base.AgentRef),
		LanguageCode:    override.LanguageCode,
		Steps:           steps,
		GlobalRules:     globals,
		SuccessCriteria: mergeMaps(base.SuccessCriteria, override.SuccessCriteria),
		Metadata:        mergeMaps(base.Metadata, override.Metadata),
	}
	return merged
}

// ValidateFlow reports advisory issues. An empty result means nothing looked
// suspicious; issues never prevent a run.
func ValidateFlow(f *FlowDefinition) []string {
	var issues []string

	seen := make(map[string]bool, len(f.Steps))
	reported := make(map[string]bool)
	for _, step := range f.Steps {
		if seen[step.StepID] && !reported[step.StepID] {
			issues = append(issues, fmt.Sprintf("duplicate step id %q", step.StepID))
			reported[step.StepID] = true
		}
		seen[step.StepID] = true
	}

	for _, step := range f.Steps {
		if strings.TrimSpace(step.UserInput) == "" {
			issues = append(issues, fmt.Sprintf("step %s: empty user input", step.StepID))
		}
	}

	if f.AgentRef == "" {
		issues = append(issues, "no agent_id specified")
	}
	return issues
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
