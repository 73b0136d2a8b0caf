package harness

import (
	"context"
	"time"

	"github.com/roach88/convtest/internal/assertion"
	"github.com/roach88/convtest/internal/criteria"
	"github.com/roach88/convtest/internal/turn"
)

// TurnExecutor sends one utterance to the conversational backend.
type TurnExecutor interface {
	SendTurn(ctx context.Context, req turn.Request) (*turn.Result, error)
}

// SessionManager does conversation-session bookkeeping. It is not part of
// validation; failures are still treated as collaborator errors.
type SessionManager interface {
	CreateSession(ctx context.Context, agentRef string, meta map[string]any) (string, error)
	UpdateSession(ctx context.Context, sessionID string, step *turn.StepResult) error
	EndSession(ctx context.Context, sessionID string) error
}

// AudioRenderer turns response text into audio bytes.
type AudioRenderer interface {
	Render(ctx context.Context, text, languageCode string) ([]byte, error)
}

// AudioSink persists rendered audio and returns where it was stored.
type AudioSink interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// Clock supplies wall time. Tests substitute a deterministic one.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run ids.
type IDGenerator interface {
	Generate() string
}

// StepState tracks a step through a run.
type StepState string

const (
	StatePending        StepState = "pending"
	StateRunning        StepState = "running"
	StatePassed         StepState = "passed"
	StateFailedContinue StepState = "failed_continue"
	StateFailedStop     StepState = "failed_stop"

	// StateAborted marks the step whose collaborator call failed before its
	// rules were evaluated.
	StateAborted StepState = "aborted"
)

// StateOf maps a step verdict onto its terminal state.
func StateOf(v assertion.StepValidationResult) StepState {
	switch {
	case v.ShouldStop:
		return StateFailedStop
	case !v.Passed:
		return StateFailedContinue
	default:
		return StatePassed
	}
}

// StepStatus pairs a step id with its state. Step ids may repeat, so states
// are kept in flow order rather than keyed by id.
type StepStatus struct {
	StepID string    `json:"step_id"`
	State  StepState `json:"state"`
}

// RunResult is everything one Harness.Run produced.
type RunResult struct {
	RunID     string    `json:"run_id"`
	FlowID    string    `json:"flow_id"`
	FlowName  string    `json:"flow_name"`
	AgentRef  string    `json:"agent_ref"`
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	DurationMs float64 `json:"duration_ms"`

	Steps             []turn.StepResult                `json:"steps"`
	ValidationResults []assertion.StepValidationResult `json:"validation_results"`
	StepStates        []StepStatus                     `json:"step_states"`

	Success      bool   `json:"success"`
	StoppedEarly bool   `json:"stopped_early"`
	StoppedAt    string `json:"stopped_at,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`

	// Error is the text of the collaborator failure that aborted the run.
	Error string `json:"error,omitempty"`

	AudioFiles []string         `json:"audio_files"`
	Report     assertion.Report `json:"report"`

	// Criteria is only set when the flow carries success criteria.
	Criteria    []criteria.Outcome `json:"criteria,omitempty"`
	CriteriaMet *bool              `json:"criteria_met,omitempty"`

	err error
}

// Err returns the collaborator error that aborted the run, if any. It is a
// *CollaboratorError.
func (r *RunResult) Err() error { return r.err }

func (r *RunResult) setState(index int, state StepState) {
	r.StepStates[index].State = state
}
