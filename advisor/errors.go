package advisor

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by the registry for unknown or evicted
// session ids.
var ErrSessionNotFound = errors.New("session not found")

// PreconditionError reports a stage operation invoked before its required
// predecessor completed. Never recovered internally; the caller must run
// the stages in order.
type PreconditionError struct {
	Operation string
	Required  Stage
	Current   Stage
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires stage %q, session is at %q", e.Operation, e.Required, e.Current)
}

// EmptySelectionError reports a validation attempt with no optimization
// selected.
type EmptySelectionError struct {
	SessionID string
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("session %s: no optimizations selected", e.SessionID)
}
