// Package report implements the report lifecycle state machine.
package report

import (
	"errors"
	"fmt"

	"github.com/civicwatch/vigil/internal/models"
)

var (
	// ErrNotFound means the referenced report id is absent from the store.
	ErrNotFound = errors.New("report not found")

	// ErrInvalidState means the action is not permitted in the report's
	// current lifecycle state, e.g. voting on a closed report.
	ErrInvalidState = errors.New("action not permitted in current report state")

	// ErrForbidden means the actor lacks permission for a mutating action.
	ErrForbidden = errors.New("actor may not modify this report")

	// ErrConflict means a concurrent-update race exhausted its retries.
	ErrConflict = errors.New("report update conflicted with concurrent changes")
)

// ValidationError carries every violated field of a request, not just the
// first, so callers can correct their input in one round trip.
type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	return fmt.Sprintf("validation failed on %d fields", len(e.Fields))
}
