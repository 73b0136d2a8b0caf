package flow

// Defaults applied by the parser.
const (
	DefaultLanguageCode   = "en"
	DefaultTimeoutSeconds = 30
)

// ValidationRule checks one value extracted from a turn result.
type ValidationRule struct {
	// Field is a path expression evaluated against the turn-result record.
	Field string `json:"field"`

	Operator Operator `json:"operator"`

	// Expected is the decoded JSON value the extracted value is compared to.
	Expected any `json:"expected_value"`

	Severity Severity `json:"assertion_level"`

	// Message replaces the generated assertion message when set.
	Message string `json:"message,omitempty"`
}

// FlowStep is one user utterance and the rules that check the reply.
type FlowStep struct {
	StepID    string `json:"step_id"`
	UserInput string `json:"user_input"`

	// Rules keeps document order: shorthand criteria first, then explicit rules.
	Rules []ValidationRule `json:"validation_rules"`

	ContinueOnFailure bool `json:"continue_on_failure"`

	// TimeoutSeconds is advisory; it is handed to the turn collaborator.
	TimeoutSeconds int `json:"timeout_seconds"`

	Metadata map[string]any `json:"metadata"`
}

// FlowDefinition is a complete conversation test. It is read-only once parsed.
type FlowDefinition struct {
	FlowID       string `json:"flow_id"`
	FlowName     string `json:"flow_name"`
	Description  string `json:"description"`
	AgentRef     string `json:"agent_id"`
	LanguageCode string `json:"language_code"`

	Steps []FlowStep `json:"steps"`

	// GlobalRules run after every step's own rules.
	GlobalRules []ValidationRule `json:"global_validation_rules"`

	SuccessCriteria map[string]any `json:"success_criteria"`
	Metadata        map[string]any `json:"metadata"`
}

// RulesFor returns the rules evaluated for a step: its own rules followed by
// the flow's global rules. The returned slice is freshly allocated.
func (f *FlowDefinition) RulesFor(step FlowStep) []ValidationRule {
	rules := make([]ValidationRule, 0, len(step.Rules)+len(f.GlobalRules))
	rules = append(rules, step.Rules...)
	rules = append(rules, f.GlobalRules...)
	return rules
}
