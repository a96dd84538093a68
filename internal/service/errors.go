package service

import "errors"

var (
	// ErrDemoMode is returned by mutating operations in demo mode.
	ErrDemoMode = errors.New("operation disabled in demo mode")

	// ErrScenarioInUse is returned when discarding a scenario a running
	// rebuild still executes.
	ErrScenarioInUse = errors.New("scenario is used by a running rebuild")

	// ErrNoActiveRebuild is returned when an operation needs the running
	// rebuild and there is none.
	ErrNoActiveRebuild = errors.New("no running rebuild")

	// ErrInvalidRequest wraps malformed arguments.
	ErrInvalidRequest = errors.New("invalid request")
)
