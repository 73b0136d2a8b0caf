package flow

import (
	"encoding/json"
	"fmt"
)

// LegacyFlow is the flat format older tooling consumes: one utterance per
// entry and no validation at all.
type LegacyFlow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	AgentID      string         `json:"agent_id"`
	LanguageCode string         `json:"language_code"`
	UserInputs   []string       `json:"user_inputs"`
	Metadata     map[string]any `json:"metadata"`
}

// ToLegacy flattens f. Validation rules and per-step options are dropped.
func ToLegacy(f *FlowDefinition) LegacyFlow {
	inputs := make([]string, len(f.Steps))
	for i, step := range f.Steps {
		inputs[i] = step.UserInput
	}
	return LegacyFlow{
		ID:           f.FlowID,
		Name:         f.FlowName,
		AgentID:      f.AgentRef,
		LanguageCode: f.LanguageCode,
		UserInputs:   inputs,
		Metadata:     nonNilMap(f.Metadata),
	}
}

// Defaults for legacy documents that omit their identity.
const (
	LegacyFlowID   = "legacy_flow"
	LegacyFlowName = "Legacy Flow"
)

// FromLegacy builds a rule-less flow with one step per utterance, named
// step_1, step_2, ...
func FromLegacy(l LegacyFlow) (*FlowDefinition, error) {
	if len(l.UserInputs) == 0 {
		return nil, structureErr("user_inputs", "flow must have at least one step")
	}

	f := &FlowDefinition{
		FlowID:          firstNonEmpty(l.ID, LegacyFlowID),
		FlowName:        firstNonEmpty(l.Name, LegacyFlowName),
		AgentRef:        l.AgentID,
		LanguageCode:    firstNonEmpty(l.LanguageCode, DefaultLanguageCode),
		Steps:           make([]FlowStep, len(l.UserInputs)),
		GlobalRules:     []ValidationRule{},
		SuccessCriteria: map[string]any{},
		Metadata:        nonNilMap(l.Metadata),
	}
	for i, input := range l.UserInputs {
		f.Steps[i] = FlowStep{
			StepID:         fmt.Sprintf("step_%d", i+1),
			UserInput:      input,
			Rules:          []ValidationRule{},
			TimeoutSeconds: DefaultTimeoutSeconds,
			Metadata:       map[string]any{},
		}
	}
	return f, nil
}

// ParseDocument parses a full flow document or, when the document has
// user_inputs and no steps, a legacy one.
func (p *Parser) ParseDocument(data []byte) (*FlowDefinition, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil && probe != nil {
		_, hasSteps := probe["steps"]
		_, hasInputs := probe["user_inputs"]
		if hasInputs && !hasSteps {
			var l LegacyFlow
			if err := json.Unmarshal(data, &l); err != nil {
				return nil, structureErr("user_inputs", "%v", err)
			}
			p.logger.Debug("parsed legacy flow", "flow", l.ID, "inputs", len(l.UserInputs))
			return FromLegacy(l)
		}
	}
	return p.Parse(data)
}
