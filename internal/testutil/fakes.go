package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/convtest/internal/turn"
)

// ScriptedTurns answers utterances from a script. Replies are looked up by
// exact utterance first; unmatched utterances consume the queue in order.
// Errors registered with FailOn are returned instead of a reply.
type ScriptedTurns struct {
	mu       sync.Mutex
	byInput  map[string]*turn.Result
	queue    []*turn.Result
	failures map[string]error
	requests []turn.Request
}

// NewScriptedTurns creates a script whose queue holds replies.
func NewScriptedTurns(replies ...*turn.Result) *ScriptedTurns {
	return &ScriptedTurns{
		byInput:  map[string]*turn.Result{},
		queue:    replies,
		failures: map[string]error{},
	}
}

// On registers the reply for an exact utterance.
func (s *ScriptedTurns) On(utterance string, reply *turn.Result) *ScriptedTurns {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byInput[utterance] = reply
	return s
}

// FailOn makes the utterance fail with err.
func (s *ScriptedTurns) FailOn(utterance string, err error) *ScriptedTurns {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[utterance] = err
	return s
}

// SendTurn implements the harness turn executor.
func (s *ScriptedTurns) SendTurn(ctx context.Context, req turn.Request) (*turn.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if err, ok := s.failures[req.Utterance]; ok {
		return nil, err
	}
	if reply, ok := s.byInput[req.Utterance]; ok {
		return reply, nil
	}
	if len(s.queue) == 0 {
		return nil, fmt.Errorf("no scripted reply for %q", req.Utterance)
	}
	reply := s.queue[0]
	s.queue = s.queue[1:]
	return reply, nil
}

// Requests returns every request seen so far.
func (s *ScriptedTurns) Requests() []turn.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]turn.Request(nil), s.requests...)
}

// Reply builds a backend result with the given intent and text messages.
func Reply(intent string, texts ...string) *turn.Result {
	res := &turn.Result{
		Intent:           intent,
		IntentConfidence: turn.Float(0.9),
		ResponseMessages: make([]turn.Message, 0, len(texts)),
		Parameters:       map[string]any{},
	}
	for _, text := range texts {
		res.ResponseMessages = append(res.ResponseMessages, turn.Message{Type: turn.TextMessage, Text: text})
	}
	return res
}

// RecordingSessions is a session manager that records every call. Each
// Fail* field, when set, is returned by the matching method.
type RecordingSessions struct {
	FailCreate error
	FailUpdate error
	FailEnd    error

	mu      sync.Mutex
	seq     int
	Created []string
	Meta    []map[string]any
	Updates []turn.StepResult
	Ended   []string
}

func (r *RecordingSessions) CreateSession(_ context.Context, agentRef string, meta map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return "", r.FailCreate
	}
	r.seq++
	id := fmt.Sprintf("session-%d", r.seq)
	r.Created = append(r.Created, agentRef)
	r.Meta = append(r.Meta, meta)
	return id, nil
}

func (r *RecordingSessions) UpdateSession(_ context.Context, _ string, step *turn.StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	r.Updates = append(r.Updates, *step)
	return nil
}

func (r *RecordingSessions) EndSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEnd != nil {
		return r.FailEnd
	}
	r.Ended = append(r.Ended, sessionID)
	return nil
}

// StubRenderer returns the text itself as audio bytes. Texts listed in Fail
// produce an error.
type StubRenderer struct {
	Fail map[string]error

	mu    sync.Mutex
	Calls []string
}

func (s *StubRenderer) Render(_ context.Context, text, languageCode string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, languageCode+":"+text)
	if err, ok := s.Fail[text]; ok {
		return nil, err
	}
	return []byte(text), nil
}

// MemorySink keeps saved audio in a map and returns "mem://<key>".
type MemorySink struct {
	FailErr error

	mu    sync.Mutex
	Files map[string][]byte
	Keys  []string
}

func (m *MemorySink) Save(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return "", m.FailErr
	}
	if m.Files == nil {
		m.Files = map[string][]byte{}
	}
	m.Files[key] = append([]byte(nil), data...)
	m.Keys = append(m.Keys, key)
	return "mem://" + key, nil
}
