package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

// Action selects what Execute does with the current step.
type Action string

const (
	// ActionRun performs a slice of the current step.
	ActionRun Action = "run"
	// ActionSkip advances past the current step without running it.
	ActionSkip Action = "skip"
)

// Executor drives rebuild states through their step plans.
//
// Execute is a pure state transition: it returns a new state and never
// writes it. Run and FastForward persist after every call so a crash
// loses at most the call in flight, and every step is idempotent so that
// call can simply be repeated.
type Executor struct {
	store       *store.Store
	marketplace catalog.Source
	lock        *LockManager
	artifacts   Artifacts
	steps       map[string]Step
	clock       Clock
	quota       AttemptQuota
	stepTimeout time.Duration
	batchSize   int
	logger      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxStepAttempts bounds recoverable failures per step. 0 is unlimited.
func WithMaxStepAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		e.quota = NewAttemptQuota(n)
	}
}

// WithStepTimeout bounds a single step call. 0 disables the timeout.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.stepTimeout = d
	}
}

// WithBatchSize sets how many modules a per-module step handles per call.
func WithBatchSize(n int) ExecutorOption {
	return func(e *Executor) {
		e.batchSize = n
	}
}

// WithArtifacts sets the pack handling collaborator.
func WithArtifacts(a Artifacts) ExecutorOption {
	return func(e *Executor) {
		e.artifacts = a
	}
}

// WithSteps replaces step implementations by id.
func WithSteps(steps ...Step) ExecutorOption {
	return func(e *Executor) {
		for _, s := range steps {
			e.steps[s.ID()] = s
		}
	}
}

// WithExecutorClock overrides the clock.
func WithExecutorClock(c Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor. marketplace supplies the releases that
// install and upgrade transitions point at.
func NewExecutor(s *store.Store, marketplace catalog.Source, lock *LockManager, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:       s,
		marketplace: marketplace,
		lock:        lock,
		artifacts:   LogArtifacts{},
		steps:       DefaultSteps(),
		clock:       SystemClock{},
		quota:       NewAttemptQuota(DefaultMaxStepAttempts),
		batchSize:   DefaultBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies action to the current step of st and returns the next
// state. st is not modified.
//
// A recoverable step error comes back together with a state that records
// the failed attempt; a fatal one (or a recoverable one past the attempt
// quota) comes back with a failed state.
func (e *Executor) Execute(ctx context.Context, st ir.RebuildState, action Action) (ir.RebuildState, error) {
	if st.Terminal() {
		return st, fmt.Errorf("rebuild %s is %s: %w", st.ID, st.Status, ErrRebuildFinished)
	}

	next := st.Clone()
	next.Seq++
	next.UpdatedAt = e.clock.Now()

	switch action {
	case ActionSkip:
		e.logger.Info("step skipped", "rebuild", st.ID, "step", st.Step.ID)
		advance(&next)
		return next, nil
	case ActionRun:
	default:
		return st, fmt.Errorf("unknown action %q", action)
	}

	step, ok := e.steps[st.Step.ID]
	if !ok {
		return st, fmt.Errorf("rebuild %s: %w: %q", st.ID, ErrUnknownStep, st.Step.ID)
	}

	sc, err := e.store.FindScenario(ctx, st.ScenarioID)
	if err != nil {
		return st, fmt.Errorf("execute rebuild %s: %w", st.ID, err)
	}
	if st.ScenarioFingerprint != "" {
		fp, err := ir.TransitionsFingerprint(sc.Transitions)
		if err != nil {
			return st, fmt.Errorf("execute rebuild %s: %w", st.ID, err)
		}
		if fp != st.ScenarioFingerprint {
			return e.fail(next, &StepError{Step: st.Step.ID, Fatal: true, Err: fmt.Errorf("%w: scenario %s", ErrScenarioChanged, sc.ID)})
		}
	}

	env := &StepEnv{
		Rebuild:     st.Clone(),
		Scenario:    sc,
		Installed:   e.store.Installed(),
		Marketplace: e.marketplace,
		Store:       e.store,
		Artifacts:   e.artifacts,
		Now:         next.UpdatedAt,
		BatchSize:   e.batchSize,
		Logger:      e.logger,
	}

	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	data, done, err := step.Run(stepCtx, env, st.Step.Data.Clone())
	if data != nil {
		next.Step.Data = data
	}
	if err != nil {
		return e.fail(next, err)
	}

	next.Step.Attempts = 0
	next.Step.LastError = ""
	if done {
		e.logger.Info("step completed", "rebuild", st.ID, "step", st.Step.ID)
		advance(&next)
	}
	return next, nil
}

// fail records a failed attempt on next.
func (e *Executor) fail(next ir.RebuildState, err error) (ir.RebuildState, error) {
	var se *StepError
	if !errors.As(err, &se) {
		se = &StepError{Step: next.Step.ID, Fatal: isFatal(err), Err: err}
		err = se
	}

	next.Step.Attempts++
	next.Step.LastError = err.Error()

	if !se.Fatal {
		if qerr := e.quota.Check(next.ID, next.Step.ID, next.Step.Attempts); qerr != nil {
			se = &StepError{Step: se.Step, Module: se.Module, Fatal: true, Err: errors.Join(se.Err, qerr)}
			err = se
		}
	}

	if se.Fatal {
		next.Status = ir.StatusFailed
		next.Error = err.Error()
		e.logger.Error("step failed", "rebuild", next.ID, "step", se.Step, "module", se.Module, "error", se.Err)
	} else {
		e.logger.Warn("step attempt failed",
			"rebuild", next.ID,
			"step", se.Step,
			"module", se.Module,
			"attempt", next.Step.Attempts,
			"error", se.Err,
		)
	}
	return next, err
}

// advance moves st to the next step of its plan, completing it after the
// last one.
func advance(st *ir.RebuildState) {
	idx := st.Step.Index + 1
	if idx >= len(st.Plan) {
		st.Status = ir.StatusCompleted
		st.Step = ir.StepState{ID: "", Index: len(st.Plan)}
		return
	}
	st.Step = ir.StepState{ID: st.Plan[idx], Index: idx}
}

// Run executes the rebuild until it completes or a step fails, persisting
// after every call. The lease is refreshed before each call, released on
// completion and pinned on a fatal failure.
func (e *Executor) Run(ctx context.Context, rebuildID string) (ir.RebuildState, error) {
	return e.drive(ctx, rebuildID, func(ir.RebuildState) (Action, bool) {
		return ActionRun, true
	})
}

// FastForward skips steps until the current step is one of stopAt, leaving
// the rebuild running there. Used by the legacy upgrade path, where the
// packs were already deployed by the previous code and only the
// bookkeeping steps remain.
func (e *Executor) FastForward(ctx context.Context, rebuildID string, stopAt ...string) (ir.RebuildState, error) {
	return e.drive(ctx, rebuildID, func(st ir.RebuildState) (Action, bool) {
		if slices.Contains(stopAt, st.Step.ID) {
			return "", false
		}
		return ActionSkip, true
	})
}

// drive loops Execute with the action chosen by next until it says stop or
// the rebuild finishes.
func (e *Executor) drive(ctx context.Context, rebuildID string, next func(ir.RebuildState) (Action, bool)) (ir.RebuildState, error) {
	st, err := e.store.FindRebuild(ctx, rebuildID)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("run rebuild: %w", err)
	}
	if st.Terminal() {
		return st, fmt.Errorf("rebuild %s is %s: %w", st.ID, st.Status, ErrRebuildFinished)
	}

	for !st.Terminal() {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("context cancelled: %w", err)
		}
		action, ok := next(st)
		if !ok {
			return st, nil
		}

		if err := e.lock.Refresh(ctx, st.LockToken); err != nil {
			return st, fmt.Errorf("rebuild %s: %w", st.ID, err)
		}

		updated, stepErr := e.Execute(ctx, st, action)
		if updated.Seq == st.Seq {
			// Execute refused before touching the state.
			return st, stepErr
		}
		if err := e.store.SaveRebuild(ctx, updated); err != nil {
			return st, fmt.Errorf("persist rebuild %s: %w", st.ID, errors.Join(err, stepErr))
		}
		st = updated

		if stepErr != nil {
			if st.Status == ir.StatusFailed {
				if err := e.lock.Pin(ctx, st.LockToken, stepErr.Error()); err != nil {
					e.logger.Error("pin rebuild lock", "rebuild", st.ID, "error", err)
				}
			}
			return st, stepErr
		}
	}

	if err := e.lock.Release(ctx, st.LockToken); err != nil {
		e.logger.Warn("release rebuild lock", "rebuild", st.ID, "error", err)
	}
	e.logger.Info("rebuild completed", "rebuild", st.ID, "scenario", st.ScenarioID, "seq", st.Seq)
	return st, nil
}
