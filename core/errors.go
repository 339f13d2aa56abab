package core

import (
	"context"
	"errors"
)

// Error taxonomy shared by services and adapters. Wrap with fmt.Errorf("%w: ...")
// and branch with errors.Is.
var (
	// ErrNotFound reports an absent student, class, subject or record.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports malformed input such as an empty subject or an out-of-range score.
	ErrValidation = errors.New("validation failed")
	// ErrTransient reports an unreachable or timed out store. Safe to retry.
	ErrTransient = errors.New("transient store failure")
	// ErrStudentNotFound reports a mutation against a student that is not enrolled.
	ErrStudentNotFound = errors.New("student not found")
	// ErrConflict reports a create of something that already exists.
	ErrConflict = errors.New("already exists")
)

// IsRetryable reports whether err is a transient failure the caller may retry unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}
