package oracle

import (
	"errors"
	"fmt"
)

// Sentinel kinds for boundary errors. Wrap with the constructors below so
// callers can classify with errors.Is while keeping the message.
var (
	// ErrInvalid marks validation failures (empty query, bad type, out-of-range limit).
	ErrInvalid = errors.New("invalid argument")

	// ErrNotFound marks lookups of threads, decisions, traces, or files that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks duplicate learn files and illegal status transitions.
	ErrConflict = errors.New("conflict")

	// ErrDegraded marks vector backend unavailability. Never fails a request
	// on its own; it surfaces as a warning attached to the result.
	ErrDegraded = errors.New("backend degraded")
)

// Invalidf returns a validation error.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// NotFoundf returns a not-found error.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Degradedf returns a degraded-backend error.
func Degradedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDegraded}, args...)...)
}

func IsInvalid(err error) bool  { return errors.Is(err, ErrInvalid) }
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
func IsDegraded(err error) bool { return errors.Is(err, ErrDegraded) }
