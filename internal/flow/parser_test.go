package flow

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(buf *bytes.Buffer) *Parser {
	return NewParser(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestParse_FullDocument(t *testing.T) {
	doc := `{
		"flow_id": "support",
		"flow_name": "Customer Support",
		"description": "account help",
		"agent_id": "agents/support",
		"language_code": "de",
		"steps": [
			{
				"step_id": "greeting",
				"user_input": "Hello, I need help",
				"validation_criteria": {
					"intent_confidence": {"operator": "gte", "value": 0.8},
					"intent": "account_help"
				},
				"validation_rules": [
					{"field": "response_text", "operator": "contains", "expected_value": "help", "assertion_level": "error", "message": "should offer help"}
				],
				"continue_on_failure": true,
				"timeout_seconds": 10,
				"metadata": {"owner": "qa"}
			}
		],
		"global_validation_rules": [
			{"field": "current_page", "operator": "not_equals", "expected_value": "Error", "assertion_level": "warning"}
		],
		"success_criteria": {"min_rate": "success_rate >= 90"},
		"metadata": {"suite": "smoke"}
	}`

	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "support", f.FlowID)
	assert.Equal(t, "Customer Support", f.FlowName)
	assert.Equal(t, "account help", f.Description)
	assert.Equal(t, "agents/support", f.AgentRef)
	assert.Equal(t, "de", f.LanguageCode)
	assert.Equal(t, map[string]any{"suite": "smoke"}, f.Metadata)
	assert.Equal(t, map[string]any{"min_rate": "success_rate >= 90"}, f.SuccessCriteria)

	require.Len(t, f.Steps, 1)
	step := f.Steps[0]
	assert.Equal(t, "greeting", step.StepID)
	assert.Equal(t, "Hello, I need help", step.UserInput)
	assert.True(t, step.ContinueOnFailure)
	assert.Equal(t, 10, step.TimeoutSeconds)
	assert.Equal(t, map[string]any{"owner": "qa"}, step.Metadata)

	require.Len(t, step.Rules, 3)
	assert.Equal(t, ValidationRule{Field: "intent_confidence", Operator: GreaterEqual, Expected: 0.8, Severity: Critical}, step.Rules[0])
	assert.Equal(t, ValidationRule{Field: "intent", Operator: Equals, Expected: "account_help", Severity: Critical}, step.Rules[1])
	assert.Equal(t, ValidationRule{Field: "response_text", Operator: Contains, Expected: "help", Severity: Error, Message: "should offer help"}, step.Rules[2])

	require.Len(t, f.GlobalRules, 1)
	assert.Equal(t, NotEquals, f.GlobalRules[0].Operator)
	assert.Equal(t, Warning, f.GlobalRules[0].Severity)
}

func TestParse_CamelCaseKeys(t *testing.T) {
	doc := `{
		"flowId": "camel",
		"agentRef": "agents/a",
		"languageCode": "fr",
		"steps": [
			{"stepId": "s1", "userInput": "bonjour", "continueOnFailure": true, "timeoutSeconds": 5,
			 "validationRules": [{"field": "intent", "expected": "hello", "severity": "WARNING"}]}
		],
		"globalValidationRules": [{"field": "intent", "operator": "NEQ", "value": "fallback"}]
	}`

	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "camel", f.FlowID)
	assert.Equal(t, "camel", f.FlowName, "name falls back to id")
	assert.Equal(t, "agents/a", f.AgentRef)
	assert.Equal(t, "fr", f.LanguageCode)
	require.Len(t, f.Steps, 1)
	assert.Equal(t, "s1", f.Steps[0].StepID)
	assert.Equal(t, "bonjour", f.Steps[0].UserInput)
	assert.True(t, f.Steps[0].ContinueOnFailure)
	assert.Equal(t, 5, f.Steps[0].TimeoutSeconds)
	require.Len(t, f.Steps[0].Rules, 1)
	assert.Equal(t, Warning, f.Steps[0].Rules[0].Severity)
	assert.Equal(t, "hello", f.Steps[0].Rules[0].Expected)
	require.Len(t, f.GlobalRules, 1)
	assert.Equal(t, NotEquals, f.GlobalRules[0].Operator)
	assert.Equal(t, "fallback", f.GlobalRules[0].Expected)
}

func TestParse_Defaults(t *testing.T) {
	f, err := Parse([]byte(`{"steps": [{"user_input": "a"}, {"user_input": "b"}]}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultLanguageCode, f.LanguageCode)
	assert.Equal(t, "step_1", f.Steps[0].StepID)
	assert.Equal(t, "step_2", f.Steps[1].StepID)
	assert.Equal(t, DefaultTimeoutSeconds, f.Steps[0].TimeoutSeconds)
	assert.False(t, f.Steps[0].ContinueOnFailure)
	assert.NotNil(t, f.Steps[0].Rules)
	assert.NotNil(t, f.GlobalRules)
	assert.NotNil(t, f.Metadata)
	assert.NotNil(t, f.SuccessCriteria)
}

func TestParse_CriteriaKeepDocumentOrder(t *testing.T) {
	doc := `{"steps": [{"user_input": "x", "validation_criteria": {"zeta": 1, "alpha": 2, "mid": {"operator": "lt", "value": 3}, "beta": 4}}]}`

	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	var fields []string
	for _, r := range f.Steps[0].Rules {
		fields = append(fields, r.Field)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, fields)
	assert.Equal(t, LessThan, f.Steps[0].Rules[2].Operator)
}

func TestParse_CriteriaObjectMayOverrideField(t *testing.T) {
	doc := `{"steps": [{"user_input": "x", "validation_criteria": {"label": {"field": "parameters.amount", "operator": "gt", "value": 10}}}]}`

	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, f.Steps[0].Rules, 1)
	assert.Equal(t, "parameters.amount", f.Steps[0].Rules[0].Field)
}

func TestParse_UserInputForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		warns bool
	}{
		{"string", `"hi"`, "hi", false},
		{"content object", `{"content": "from content"}`, "from content", false},
		{"text object", `{"text": "from text"}`, "from text", false},
		{"content wins", `{"content": "c", "text": "t"}`, "c", false},
		{"empty object", `{}`, "", true},
		{"number", `42`, "42", false},
		{"bool", `true`, "true", false},
		{"null", `null`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			f, err := newTestParser(&logs).Parse([]byte(`{"steps": [{"user_input": ` + tt.input + `}]}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Steps[0].UserInput)
			if tt.warns {
				assert.Contains(t, logs.String(), "level=WARN")
			}
		})
	}
}

func TestParse_MissingUserInputWarns(t *testing.T) {
	var logs bytes.Buffer
	f, err := newTestParser(&logs).Parse([]byte(`{"steps": [{"step_id": "quiet"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "", f.Steps[0].UserInput)
	assert.Contains(t, logs.String(), "step has no user input")
}

func TestParse_UnknownOperatorAndLevel(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		wantLogs []string
		wantMsg  string
	}{
		{
			name:     "unknown names",
			rule:     `{"field": "intent", "operator": "resembles", "expected_value": "a", "assertion_level": "fatal"}`,
			wantLogs: []string{"unknown operator", "unknown assertion level"},
		},
		{
			name:     "object operator",
			rule:     `{"field": "intent", "operator": {"x": 1}, "expected": 1}`,
			wantLogs: []string{"unknown operator"},
		},
		{
			name:     "list severity",
			rule:     `{"field": "intent", "severity": ["error"], "expected": 1}`,
			wantLogs: []string{"unknown assertion level"},
		},
		{
			name:     "numeric operator",
			rule:     `{"field": "intent", "operator": 7, "level": false}`,
			wantLogs: []string{"unknown operator", "unknown assertion level"},
		},
		{
			name:     "object message",
			rule:     `{"field": "intent", "expected": 1, "message": {"text": "nope"}}`,
			wantLogs: []string{"message is not text"},
		},
		{
			name:    "numeric message",
			rule:    `{"field": "intent", "expected": 1, "message": 42}`,
			wantMsg: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			doc := `{"steps": [{"user_input": "x", "validation_rules": [` + tt.rule + `]}]}`

			f, err := newTestParser(&logs).Parse([]byte(doc))
			require.NoError(t, err)

			rule := f.Steps[0].Rules[0]
			assert.Equal(t, "intent", rule.Field)
			assert.Equal(t, Equals, rule.Operator)
			assert.Equal(t, Critical, rule.Severity)
			assert.Equal(t, tt.wantMsg, rule.Message)
			for _, want := range tt.wantLogs {
				assert.Contains(t, logs.String(), want)
			}
		})
	}
}

func TestParse_ExpectationKeysKeptInMetadata(t *testing.T) {
	doc := `{"steps": [{
		"user_input": "book",
		"expected_intent": "book_table",
		"expectedEntities": {"party_size": 2},
		"expected_response_contains": ["how many"],
		"metadata": {"owner": "qa", "expected_intent": "kept"}
	}]}`

	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	step := f.Steps[0]
	assert.Empty(t, step.Rules, "expectation keys do not become rules")
	assert.Equal(t, map[string]any{
		"owner":                      "qa",
		"expected_intent":            "kept",
		"expected_entities":          map[string]any{"party_size": 2.0},
		"expected_response_contains": []any{"how many"},
	}, step.Metadata)
}

func TestParse_DuplicateStepIDsWarn(t *testing.T) {
	var logs bytes.Buffer
	f, err := newTestParser(&logs).Parse([]byte(`{"steps": [{"step_id": "a", "user_input": "1"}, {"step_id": "a", "user_input": "2"}]}`))
	require.NoError(t, err)
	assert.Len(t, f.Steps, 2)
	assert.Contains(t, logs.String(), "duplicate step id")
}

func TestParse_StructureErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"not an object", `[1, 2]`, ""},
		{"null document", `null`, ""},
		{"missing steps", `{"flow_id": "x"}`, "steps"},
		{"steps not array", `{"steps": {"a": 1}}`, "steps"},
		{"empty steps", `{"steps": []}`, "steps"},
		{"step not object", `{"steps": ["hello"]}`, "steps[0]"},
		{"rule not object", `{"steps": [{"user_input": "x", "validation_rules": ["intent"]}]}`, "steps[0].validation_rules[0]"},
		{"rule without field", `{"steps": [{"user_input": "x", "validation_rules": [{"operator": "equals"}]}]}`, "steps[0].validation_rules[0]"},
		{"rules not array", `{"steps": [{"user_input": "x", "validation_rules": {"field": "a"}}]}`, "steps[0].validation_rules"},
		{"criteria not object", `{"steps": [{"user_input": "x", "validation_criteria": [1]}]}`, "steps[0].validation_criteria"},
		{"global rule without field", `{"steps": [{"user_input": "x"}], "global_validation_rules": [{"value": 1}]}`, "global_validation_rules[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			require.True(t, IsStructureError(err), "got %T: %v", err, err)

			var se *StructureError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.path, se.Path)
		})
	}
}

func TestParse_MalformedJSONIsNotStructureError(t *testing.T) {
	_, err := Parse([]byte(`{"steps": [`))
	require.Error(t, err)
	assert.False(t, IsStructureError(err))
}

func TestParseOperator_Aliases(t *testing.T) {
	tests := map[string]Operator{
		"EQUALS":        Equals,
		"eq":            Equals,
		"neq":           NotEquals,
		"Contains":      Contains,
		"contains_all":  ContainsAll,
		"contains_any":  ContainsAny,
		"greater_than":  GreaterThan,
		"gt":            GreaterThan,
		"less_than":     LessThan,
		"gte":           GreaterEqual,
		"greater_equal": GreaterEqual,
		"lte":           LessEqual,
		"less_equal":    LessEqual,
		"regex":         RegexMatch,
		"regex_match":   RegexMatch,
		"in":            InList,
		"in_list":       InList,
	}
	for in, want := range tests {
		got, ok := ParseOperator(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseOperator("like")
	assert.False(t, ok)
	assert.Equal(t, Equals, got)
}

func TestOperator_TextRoundTrip(t *testing.T) {
	for op := Equals; op <= InList; op++ {
		text, err := op.MarshalText()
		require.NoError(t, err)

		var back Operator
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, op, back)
	}
}

func TestParseSeverity(t *testing.T) {
	sev, ok := ParseSeverity("Error")
	assert.True(t, ok)
	assert.Equal(t, Error, sev)

	sev, ok = ParseSeverity("info")
	assert.False(t, ok)
	assert.Equal(t, Critical, sev)
}
