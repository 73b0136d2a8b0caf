package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convtest/internal/flow"
)

func loadErr(t *testing.T, err error) *LoadError {
	t.Helper()
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected *LoadError, got %T: %v", err, err)
	return le
}

func TestLoadFlow_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "booking.json", bookingFlow)

	f, err := LoadFlow(path, flow.NewParser(nil))
	require.NoError(t, err)
	assert.Equal(t, "booking", f.FlowID)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "book a table", f.Steps[1].UserInput)
	assert.Equal(t, flow.Error, f.Steps[1].Rules[0].Severity)
}

func TestLoadFlow_YAMLKeepsCriteriaOrder(t *testing.T) {
	path := writeFile(t, t.TempDir(), "order.yml", `flow_id: order
steps:
  - step_id: s1
    user_input: hi
    validation_criteria:
      intent: greeting
      current_page: Start
      intent_confidence: {operator: gte, value: 0.5, level: warning}
`)

	f, err := LoadFlow(path, flow.NewParser(nil))
	require.NoError(t, err)
	require.Len(t, f.Steps[0].Rules, 3)

	fields := []string{}
	for _, r := range f.Steps[0].Rules {
		fields = append(fields, r.Field)
	}
	assert.Equal(t, []string{"intent", "current_page", "intent_confidence"}, fields)
	assert.Equal(t, flow.GreaterEqual, f.Steps[0].Rules[2].Operator)
	assert.Equal(t, 0.5, f.Steps[0].Rules[2].Expected)
	assert.Equal(t, flow.Warning, f.Steps[0].Rules[2].Severity)
}

func TestLoadFlow_YAMLAnchors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "anchors.yaml", `flow_id: anchors
steps:
  - step_id: s1
    user_input: hi
    validation_criteria: &greeted
      intent: greeting
  - step_id: s2
    user_input: hello
    validation_criteria: *greeted
`)

	f, err := LoadFlow(path, flow.NewParser(nil))
	require.NoError(t, err)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "greeting", f.Steps[1].Rules[0].Expected)
}

func TestLoadFlow_CUE(t *testing.T) {
	path := writeFile(t, t.TempDir(), "booking.cue", `flow_id: "cue_flow"
#greeting: {intent: "greeting"}
steps: [
	{step_id: "s1", user_input: "hi", validation_criteria: #greeting},
	{step_id: "s2", user_input: "hello", validation_criteria: #greeting},
]
`)

	f, err := LoadFlow(path, flow.NewParser(nil))
	require.NoError(t, err)
	assert.Equal(t, "cue_flow", f.FlowID)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "intent", f.Steps[1].Rules[0].Field)
}

func TestLoadFlow_Legacy(t *testing.T) {
	path := writeFile(t, t.TempDir(), "legacy.json",
		`{"id": "old", "agent_id": "agent-1", "user_inputs": ["hi", "book a table"]}`)

	f, err := LoadFlow(path, flow.NewParser(nil))
	require.NoError(t, err)
	assert.Equal(t, "old", f.FlowID)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "step_2", f.Steps[1].StepID)
	assert.Empty(t, f.Steps[1].Rules)
}

func TestLoadFlow_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
	}{
		{"missing file", "", "", ErrCodeNotFound},
		{"bad json", "bad.json", `{"steps": [`, ErrCodeMalformed},
		{"bad yaml", "bad.yaml", "steps: [unclosed", ErrCodeMalformed},
		{"empty yaml", "empty.yaml", "", ErrCodeMalformed},
		{"bad cue", "bad.cue", `steps: [`, ErrCodeMalformed},
		{"incomplete cue", "open.cue", "flow_id: string\nsteps: [{user_input: \"hi\"}]\n", ErrCodeMalformed},
		{"not an object", "list.json", `[1, 2]`, ErrCodeStructure},
		{"no steps", "empty.json", `{"flow_id": "x", "steps": []}`, ErrCodeStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "missing.json")
			if tt.file != "" {
				path = writeFile(t, dir, tt.file, tt.content)
			}

			_, err := LoadFlow(path, flow.NewParser(nil))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, loadErr(t, err).Code)
			assert.Equal(t, tt.wantCode, loadErrorCode(err))
		})
	}
}

func TestLoadError_CUEPosition(t *testing.T) {
	path := writeFile(t, t.TempDir(), "conflict.cue", "flow_id: \"a\"\nflow_id: \"b\"\nsteps: []\n")

	_, err := ReadFlowDocument(path)
	require.Error(t, err)
	le := loadErr(t, err)
	assert.Equal(t, ErrCodeMalformed, le.Code)
	assert.Contains(t, le.Error(), "conflict.cue")
	if le.Pos.IsValid() {
		assert.Greater(t, le.Pos.Line(), 0)
	}
}

func TestLoadError_Format(t *testing.T) {
	err := &LoadError{Code: ErrCodeNotFound, Message: "flow file not found: x.json"}
	assert.Equal(t, "E_NOT_FOUND: flow file not found: x.json", err.Error())
	assert.Equal(t, ErrCodeGeneric, loadErrorCode(errors.New("plain")))
}

func TestYAMLToJSON_Scalars(t *testing.T) {
	out, err := yamlToJSON([]byte(`a: 1
b: 2.5
c: true
d: null
e: "text"
f: [x, 2]
`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2.5,"c":true,"d":null,"e":"text","f":["x",2]}`, string(out))
	assert.Equal(t, `{"a":1,"b":2.5,"c":true,"d":null,"e":"text","f":["x",2]}`, string(out))
}
