package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convtest/internal/flow"
	"github.com/roach88/convtest/internal/testutil"
)

func TestRunWithGolden_Greeting(t *testing.T) {
	turns := testutil.NewScriptedTurns().On("hello", testutil.Reply("greeting", "Hi there!"))
	h := newTestHarness(t, Options{
		Turns: turns,
		IDs:   testutil.NewFixedIDGenerator("run-golden"),
	})

	f := &flow.FlowDefinition{
		FlowID:       "golden_greeting",
		FlowName:     "Greeting",
		AgentRef:     "agent-1",
		LanguageCode: "en",
		Steps:        []flow.FlowStep{step("greet", "hello", intentIs("greeting", flow.Critical))},
	}

	result, err := RunWithGolden(t, h, f)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestSnapshot_Stable(t *testing.T) {
	run := func() []byte {
		turns := testutil.NewScriptedTurns(testutil.Reply("greeting", "Hi"))
		h := newTestHarness(t, Options{Turns: turns})
		result, err := h.Run(t.Context(), testFlow(step("greet", "hi", intentIs("greeting", flow.Critical))))
		require.NoError(t, err)
		data, err := Snapshot(result)
		require.NoError(t, err)
		return data
	}

	first, second := run(), run()
	assert.Equal(t, string(first), string(second))
	assert.True(t, strings.HasSuffix(string(first), "}\n"))
}
