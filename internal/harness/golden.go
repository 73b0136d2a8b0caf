package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/convtest/internal/flow"
)

// Snapshot renders a run result as indented JSON with sorted map keys. With a
// deterministic clock and id generator the output is byte-stable.
func Snapshot(result *RunResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares result against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *RunResult) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// RunWithGolden runs f and compares the result against the golden file
// named after the flow id.
func RunWithGolden(t *testing.T, h *Harness, f *flow.FlowDefinition) (*RunResult, error) {
	t.Helper()

	result, err := h.Run(context.Background(), f)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, f.FlowID, result)
}
