package flow

import (
	"errors"
	"fmt"
)

// StructureError reports a flow document that cannot be turned into a
// FlowDefinition. It aborts parsing before anything is executed.
type StructureError struct {
	// Path locates the offending element, e.g. "steps[2].validation_rules[0]".
	Path    string
	Message string
}

func (e *StructureError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid flow structure at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid flow structure: %s", e.Message)
}

// IsStructureError reports whether err (or anything it wraps) is a
// StructureError.
func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}

func structureErr(path, format string, args ...any) *StructureError {
	return &StructureError{Path: path, Message: fmt.Sprintf(format, args...)}
}
