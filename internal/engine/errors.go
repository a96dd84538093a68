package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost is returned when the rebuild lock lease held by a rebuild
// no longer belongs to it (expired and taken over, or cleared manually).
var ErrLeaseLost = errors.New("rebuild lease lost")

// ErrRebuildFinished is returned when executing a rebuild that already
// completed or failed.
var ErrRebuildFinished = errors.New("rebuild already finished")

// ErrScenarioChanged is returned when the scenario behind a rebuild no
// longer has the transitions the rebuild was started with.
var ErrScenarioChanged = errors.New("scenario changed under running rebuild")

// ErrUnknownStep is returned when a rebuild state names a step the executor
// does not know.
var ErrUnknownStep = errors.New("unknown step")

// StepError reports a failed step call.
//
// A recoverable StepError leaves the rebuild running; calling Run again
// retries the step. A fatal one fails the rebuild and pins the lease.
type StepError struct {
	// Step is the step id.
	Step string

	// Module identifies the module being processed, if any.
	Module string

	// Fatal marks errors that cannot be retried.
	Fatal bool

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	kind := "recoverable"
	if e.Fatal {
		kind = "fatal"
	}
	if e.Module != "" {
		return fmt.Sprintf("step %s (%s): %s error: %v", e.Step, e.Module, kind, e.Err)
	}
	return fmt.Sprintf("step %s: %s error: %v", e.Step, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsStepError returns true if the error is a StepError.
// Uses errors.As to handle wrapped errors.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// IsFatalStepError returns true if the error is a fatal StepError.
func IsFatalStepError(err error) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Fatal
	}
	return false
}

// fatalError marks an error from a collaborator as not retryable.
type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal wraps err so that the executor fails the rebuild instead of
// retrying the step. Fatal(nil) returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

func isFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}

// LockHeldError is returned when the rebuild lock is held by someone else.
type LockHeldError struct {
	Key       string
	Holder    string
	ExpiresAt time.Time
	Pinned    bool
	Reason    string
}

// Error implements the error interface.
func (e *LockHeldError) Error() string {
	if e.Pinned {
		return fmt.Sprintf("rebuild lock %s is pinned by %s: %s", e.Key, e.Holder, e.Reason)
	}
	return fmt.Sprintf("rebuild lock %s is held by %s until %s", e.Key, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

// IsLockHeldError returns true if the error is a LockHeldError.
// Uses errors.As to handle wrapped errors.
func IsLockHeldError(err error) bool {
	var le *LockHeldError
	return errors.As(err, &le)
}
