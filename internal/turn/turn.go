// Package turn holds the data exchanged with a conversational backend for a
// single user utterance and the per-step record that rules are evaluated on.
package turn

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	TextMessage    = "text"
	PayloadMessage = "payload"
)

// Message is one agent response message.
type Message struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Request is what the harness asks a backend to do for one step.
type Request struct {
	AgentRef     string
	SessionID    string
	Utterance    string
	LanguageCode string

	// TimeoutSeconds is advisory; backends may use it for their own deadline.
	TimeoutSeconds int
}

// Result is the backend's answer to one utterance.
type Result struct {
	Intent           string
	IntentConfidence *float64
	ResponseMessages []Message
	Parameters       map[string]any
	CurrentPage      string
}

// Texts returns the text of every text message, in order.
func (r *Result) Texts() []string {
	var out []string
	for _, m := range r.ResponseMessages {
		if m.Type == TextMessage && m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

// StepResult is the captured outcome of one executed step. It is created once
// per step and never modified after validation.
type StepResult struct {
	StepID           string         `json:"step_id"`
	StepNumber       int            `json:"step_number"`
	UserInput        string         `json:"user_input"`
	Intent           string         `json:"intent"`
	IntentConfidence *float64       `json:"intent_confidence"`
	ResponseMessages []Message      `json:"response_messages"`
	Parameters       map[string]any `json:"parameters"`
	CurrentPage      string         `json:"current_page"`
	ExecutionTimeMs  float64        `json:"execution_time_ms"`
	Timestamp        time.Time      `json:"timestamp"`
	AudioFiles       []string       `json:"audio_files,omitempty"`
}

// NewStepResult copies a backend result into a step result.
func NewStepResult(stepID string, number int, userInput string, res *Result) *StepResult {
	sr := &StepResult{
		StepID:           stepID,
		StepNumber:       number,
		UserInput:        userInput,
		ResponseMessages: []Message{},
		Parameters:       map[string]any{},
	}
	if res == nil {
		return sr
	}
	sr.Intent = res.Intent
	sr.IntentConfidence = res.IntentConfidence
	sr.CurrentPage = res.CurrentPage
	if res.ResponseMessages != nil {
		sr.ResponseMessages = append(sr.ResponseMessages, res.ResponseMessages...)
	}
	for k, v := range res.Parameters {
		sr.Parameters[k] = v
	}
	return sr
}

// Record renders the step result as the generic map that path expressions
// are evaluated against. Keys are snake_case; numbers are float64.
func (s *StepResult) Record() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Float returns a pointer to f, for building confidences in literals.
func Float(f float64) *float64 { return &f }
