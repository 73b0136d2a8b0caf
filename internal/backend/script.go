package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/convtest/internal/turn"
)

// Script is a canned conversation. Each utterance is answered by the first
// entry whose Match equals it (case-insensitively, ignoring surrounding
// space) or whose Pattern matches it. Unmatched utterances get Fallback, or
// an error when there is none.
//
//	turns:
//	  - match: "hi"
//	    intent: greeting
//	    confidence: 0.95
//	    messages: ["Hello! How can I help?"]
//	  - pattern: "(?i)book .* table"
//	    intent: book_table
//	    page: Booking
//	    parameters: {party_size: 2}
//	fallback:
//	  intent: fallback
//	  messages: ["Sorry, I didn't get that."]
type Script struct {
	Turns    []ScriptTurn `yaml:"turns"`
	Fallback *ScriptTurn  `yaml:"fallback"`
}

// ScriptTurn is one canned answer.
type ScriptTurn struct {
	Match      string           `yaml:"match"`
	Pattern    string           `yaml:"pattern"`
	Intent     string           `yaml:"intent"`
	Confidence *float64         `yaml:"confidence"`
	Messages   []string         `yaml:"messages"`
	Payloads   []map[string]any `yaml:"payloads"`
	Parameters map[string]any   `yaml:"parameters"`
	Page       string           `yaml:"page"`

	re *regexp.Regexp
}

// Scripted answers turns from a Script. It is stateless after loading and
// safe for concurrent use.
type Scripted struct {
	script Script
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script. Unknown keys and invalid patterns are
// errors.
func ParseScript(data []byte) (*Scripted, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	for i := range s.Turns {
		t := &s.Turns[i]
		if t.Match == "" && t.Pattern == "" {
			return nil, fmt.Errorf("parse script: turn %d needs match or pattern", i+1)
		}
		if t.Pattern != "" {
			re, err := regexp.Compile(t.Pattern)
			if err != nil {
				return nil, fmt.Errorf("parse script: turn %d: %w", i+1, err)
			}
			t.re = re
		}
	}
	return &Scripted{script: s}, nil
}

// SendTurn implements the harness turn executor.
func (s *Scripted) SendTurn(ctx context.Context, req turn.Request) (*turn.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	utterance := strings.TrimSpace(req.Utterance)
	for _, t := range s.script.Turns {
		if t.matches(utterance) {
			return t.result(), nil
		}
	}
	if s.script.Fallback != nil {
		return s.script.Fallback.result(), nil
	}
	return nil, fmt.Errorf("scripted backend: %w: %q", ErrUnscripted, req.Utterance)
}

// ErrUnscripted is returned for an utterance with no scripted answer.
var ErrUnscripted = errors.New("no scripted answer")

func (t *ScriptTurn) matches(utterance string) bool {
	if t.Match != "" && strings.EqualFold(strings.TrimSpace(t.Match), utterance) {
		return true
	}
	return t.re != nil && t.re.MatchString(utterance)
}

func (t *ScriptTurn) result() *turn.Result {
	res := &turn.Result{
		Intent:           t.Intent,
		IntentConfidence: t.Confidence,
		CurrentPage:      t.Page,
		ResponseMessages: make([]turn.Message, 0, len(t.Messages)+len(t.Payloads)),
		Parameters:       map[string]any{},
	}
	for _, m := range t.Messages {
		res.ResponseMessages = append(res.ResponseMessages, turn.Message{Type: turn.TextMessage, Text: m})
	}
	for _, p := range t.Payloads {
		res.ResponseMessages = append(res.ResponseMessages, turn.Message{Type: turn.PayloadMessage, Payload: p})
	}
	for k, v := range t.Parameters {
		res.Parameters[k] = v
	}
	return res
}
