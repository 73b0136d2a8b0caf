package harness

import (
	"errors"
	"fmt"
)

// Collaborator operations named in CollaboratorError.Op.
const (
	OpCreateSession = "create_session"
	OpSendTurn      = "send_turn"
	OpRecordStep    = "record_step"
	OpUpdateSession = "update_session"
	OpEndSession    = "end_session"
)

// CollaboratorError reports a failed call to the backend or session store.
// It aborts the rest of the run; the partial report is still produced.
type CollaboratorError struct {
	// Op is the failing operation, one of the Op* constants.
	Op string

	// StepID is empty for failures outside a step.
	StepID string

	Err error
}

func (e *CollaboratorError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s failed at step %s: %v", e.Op, e.StepID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IsCollaboratorError reports whether err is or wraps a CollaboratorError.
func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
