package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

// ErrRebuildActive is returned when starting a rebuild while another one is
// still running.
var ErrRebuildActive = errors.New("a rebuild is already running")

// Resolver turns a persisted scenario into a running rebuild.
type Resolver struct {
	store  *store.Store
	lock   *LockManager
	ids    IDGenerator
	clock  Clock
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRebuildIDs overrides the rebuild id generator.
func WithRebuildIDs(g IDGenerator) ResolverOption {
	return func(r *Resolver) {
		r.ids = g
	}
}

// WithResolverClock overrides the clock.
func WithResolverClock(c Clock) ResolverOption {
	return func(r *Resolver) {
		r.clock = c
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver.
func NewResolver(s *store.Store, lock *LockManager, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  s,
		lock:   lock,
		ids:    UUIDv7Generator{},
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartRebuild takes the rebuild lock and persists a fresh running state
// for scenarioID. The lease is released again if the state cannot be saved.
func (r *Resolver) StartRebuild(ctx context.Context, scenarioID string, reason ir.RebuildReason) (ir.RebuildState, error) {
	plan, err := PlanFor(reason)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	}

	sc, err := r.store.FindScenario(ctx, scenarioID)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	}

	if active, ok, err := r.store.ActiveRebuild(ctx); err != nil {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	} else if ok {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w (rebuild %s, scenario %s)", ErrRebuildActive, active.ID, active.ScenarioID)
	}

	fingerprint, err := ir.TransitionsFingerprint(sc.Transitions)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	}

	id := r.ids.Generate()
	lease, err := r.lock.Acquire(ctx, id)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	}

	now := r.clock.Now()
	st := ir.RebuildState{
		ID:                  id,
		ScenarioID:          sc.ID,
		Reason:              reason,
		ScenarioType:        sc.Type,
		ScenarioFingerprint: fingerprint,
		Plan:                plan,
		Step:                ir.StepState{ID: plan[0], Index: 0},
		Status:              ir.StatusRunning,
		CanRollback:         sc.CanRollback,
		LockToken:           lease.Token,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := r.store.SaveRebuild(ctx, st); err != nil {
		if relErr := r.lock.Release(ctx, lease.Token); relErr != nil {
			r.logger.Error("release rebuild lock after failed start", "rebuild", id, "error", relErr)
		}
		if errors.Is(err, store.ErrRebuildRunning) {
			return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", ErrRebuildActive)
		}
		return ir.RebuildState{}, fmt.Errorf("start rebuild: %w", err)
	}

	r.logger.Info("rebuild started",
		"rebuild", id,
		"scenario", sc.ID,
		"reason", reason,
		"plan", plan,
		"transitions", len(sc.Transitions),
	)
	return st, nil
}
