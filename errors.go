package metricsink

import (
	"errors"
	"fmt"
)

var (
	// ErrPoisoned is raised once a critical section has panicked; the table
	// can no longer be trusted.
	ErrPoisoned = errors.New("metrics aggregator poisoned by an earlier panic")

	// ErrHandleClosed is returned when a handle is closed more than once.
	ErrHandleClosed = errors.New("metrics handle already closed")

	// ErrAlreadyInitialized is returned by Init once the default aggregator exists.
	ErrAlreadyInitialized = errors.New("metrics aggregator already initialized")

	// ErrNoPath is returned by Validate when neither a path nor a sink is set.
	ErrNoPath = errors.New("metrics path cannot be empty")
)

// A FlushError is returned when the last handle could not persist the table.
// The live count has already been decremented when it is returned.
type FlushError struct {
	Path string
	Err  error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush metrics to %q: %v", e.Path, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }
