package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convtest/internal/turn"
)

func TestScriptedTurns_ByUtteranceThenQueue(t *testing.T) {
	turns := NewScriptedTurns(Reply("queued", "one"), Reply("queued2", "two")).
		On("hello", Reply("greet", "hi there"))

	ctx := context.Background()
	res, err := turns.SendTurn(ctx, turn.Request{Utterance: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "greet", res.Intent)

	res, err = turns.SendTurn(ctx, turn.Request{Utterance: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "queued", res.Intent)

	res, err = turns.SendTurn(ctx, turn.Request{Utterance: "else"})
	require.NoError(t, err)
	assert.Equal(t, "queued2", res.Intent)

	_, err = turns.SendTurn(ctx, turn.Request{Utterance: "empty"})
	assert.Error(t, err)
	assert.Len(t, turns.Requests(), 4)
}

func TestScriptedTurns_FailOn(t *testing.T) {
	boom := errors.New("boom")
	turns := NewScriptedTurns().FailOn("x", boom)

	_, err := turns.SendTurn(context.Background(), turn.Request{Utterance: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestFixedIDGenerator_Sequence(t *testing.T) {
	gen := NewFixedIDGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Equal(t, "test-id-3", gen.Generate())
}

func TestRecordingSessions_Records(t *testing.T) {
	s := &RecordingSessions{}
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "agent", map[string]any{"flow_id": "f"})
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)

	require.NoError(t, s.UpdateSession(ctx, id, &turn.StepResult{StepID: "s1"}))
	require.NoError(t, s.EndSession(ctx, id))

	assert.Equal(t, []string{"agent"}, s.Created)
	assert.Len(t, s.Updates, 1)
	assert.Equal(t, []string{"session-1"}, s.Ended)
}

func TestMemorySink_Save(t *testing.T) {
	sink := &MemorySink{}
	loc, err := sink.Save(context.Background(), "k.wav", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "mem://k.wav", loc)
	assert.Equal(t, []byte("data"), sink.Files["k.wav"])
}
