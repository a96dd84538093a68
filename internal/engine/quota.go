package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxStepAttempts is how many times a step may fail with a
// recoverable error before the rebuild fails.
const DefaultMaxStepAttempts = 5

// AttemptQuota bounds retries of a single step.
//
// Recoverable step errors leave the rebuild running so the step can be
// retried. Without a bound a step that keeps failing would hold the lock
// forever; once the quota is spent the failure is treated as fatal.
type AttemptQuota struct {
	maxAttempts int // 0 means unlimited
}

// NewAttemptQuota creates a quota. maxAttempts <= 0 disables it.
func NewAttemptQuota(maxAttempts int) AttemptQuota {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return AttemptQuota{maxAttempts: maxAttempts}
}

// Check validates the failed attempt count of step against the limit.
//
// Returns AttemptsExceededError once attempts reaches the limit.
func (q AttemptQuota) Check(rebuildID, step string, attempts int) error {
	if q.maxAttempts > 0 && attempts >= q.maxAttempts {
		return &AttemptsExceededError{
			RebuildID: rebuildID,
			Step:      step,
			Attempts:  attempts,
			Limit:     q.maxAttempts,
		}
	}
	return nil
}

// MaxAttempts returns the limit, 0 when unlimited.
func (q AttemptQuota) MaxAttempts() int {
	return q.maxAttempts
}

// AttemptsExceededError is returned when a step has failed too often.
type AttemptsExceededError struct {
	RebuildID string
	Step      string
	Attempts  int
	Limit     int
}

// Error implements the error interface.
func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("rebuild %s: step %s failed %d times (limit %d)",
		e.RebuildID, e.Step, e.Attempts, e.Limit)
}

// IsAttemptsExceededError returns true if the error is an
// AttemptsExceededError. Uses errors.As to handle wrapped errors.
func IsAttemptsExceededError(err error) bool {
	var ae *AttemptsExceededError
	return errors.As(err, &ae)
}
