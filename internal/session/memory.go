// Package session tracks conversation sessions for flow runs. A session is
// created per run, receives every validated step and is ended when the run
// finishes.
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/convtest/internal/turn"
)

// Session status values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Session is the stored view of one conversation.
type Session struct {
	ID        string            `json:"id"`
	AgentRef  string            `json:"agent_ref"`
	Metadata  map[string]any    `json:"metadata"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Steps     []turn.StepResult `json:"steps"`
}

// Memory keeps sessions in process memory. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemory creates an empty in-memory session manager.
func NewMemory() *Memory {
	return &Memory{
		sessions: map[string]*Session{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession starts a session for agentRef with a new UUIDv7 id.
func (m *Memory) CreateSession(_ context.Context, agentRef string, meta map[string]any) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()

	s := &Session{
		ID:        id,
		AgentRef:  agentRef,
		Metadata:  map[string]any{},
		Status:    StatusActive,
		CreatedAt: m.now(),
		Steps:     []turn.StepResult{},
	}
	maps.Copy(s.Metadata, meta)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return id, nil
}

// UpdateSession appends a step to an active session.
func (m *Memory) UpdateSession(_ context.Context, sessionID string, step *turn.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("update session %s: %w", sessionID, ErrNotFound)
	}
	if s.Status != StatusActive {
		return fmt.Errorf("update session %s: session is %s", sessionID, s.Status)
	}
	s.Steps = append(s.Steps, *step)
	return nil
}

// EndSession marks a session ended. Ending an ended session is a no-op.
func (m *Memory) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("end session %s: %w", sessionID, ErrNotFound)
	}
	if s.Status == StatusEnded {
		return nil
	}
	now := m.now()
	s.Status = StatusEnded
	s.EndedAt = &now
	return nil
}

// Get returns a copy of the session.
func (m *Memory) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}
	out := *s
	out.Metadata = maps.Clone(s.Metadata)
	out.Steps = append([]turn.StepResult(nil), s.Steps...)
	return &out, nil
}
