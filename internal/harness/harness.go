package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/compiler"
	"github.com/roach88/storebus/internal/config"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
	"github.com/roach88/storebus/internal/service"
	"github.com/roach88/storebus/internal/store"
	"github.com/roach88/storebus/internal/testutil"
)

// Harness holds the per-run collaborators.
type Harness struct {
	store     *store.Store
	svc       *service.Service
	artifacts *recorder
	logger    *slog.Logger
}

// Run executes a fixture and returns its result.
//
// Each fixture runs in a fresh in-memory database with a manual clock and
// sequential ids, so two runs of the same fixture produce the same result.
// An error is returned only when the fixture cannot be set up or run; step
// and assertion failures are reported in the result.
func Run(ctx context.Context, f *Fixture) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cat, err := buildCatalog(f)
	if err != nil {
		return nil, err
	}

	mods := make([]ir.Module, 0, len(f.Installed))
	for _, ms := range f.Installed {
		m := ms.Module(true)
		mods = append(mods, m)
		if _, ok, err := catalog.Release(ctx, cat.Marketplace, m.ID, m.Version); err != nil {
			return nil, err
		} else if !ok {
			rel := m
			rel.Installed, rel.Enabled = false, false
			cat.Marketplace.Put(rel)
		}
	}
	if err := st.SaveModules(ctx, mods...); err != nil {
		return nil, fmt.Errorf("failed to seed installed modules: %w", err)
	}

	cfg := config.Default()
	if f.Policy != "" {
		cfg.Builder.DependentsPolicy = f.Policy
	}

	h := &Harness{
		store:     st,
		artifacts: &recorder{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.svc, err = service.New(st, cat, cfg,
		service.WithIDs(testutil.NewSequenceGenerator(f.Name)),
		service.WithClock(testutil.NewManualClock(testutil.Epoch)),
		service.WithArtifacts(h.artifacts),
		service.WithLogger(h.logger),
	)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	sc, err := h.svc.CreateScenario(ctx, service.CreateArgs{})
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}

	for i, step := range f.Steps {
		sc = h.executeStep(ctx, i+1, sc, step, result)
	}
	result.Transitions = sc.Transitions

	if f.Rebuild != "" {
		if err := h.executeRebuild(ctx, sc.ID, ir.RebuildReason(f.Rebuild), result); err != nil {
			return nil, fmt.Errorf("failed to run rebuild: %w", err)
		}
	}

	result.Installed, err = st.ListModules(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed modules: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, f.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func buildCatalog(f *Fixture) (*catalog.Catalog, error) {
	cat := &catalog.Catalog{Marketplace: catalog.NewMemory(), Editions: catalog.Editions{}}
	if f.Catalog != "" {
		res, errs := compiler.LoadDir(f.Catalog, compiler.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load catalog: %w", errors.Join(errs...))
		}
		cat = res.Catalog
	}
	for _, ms := range f.Marketplace {
		cat.Marketplace.Put(ms.Module(false))
	}
	return cat, nil
}

// executeStep applies one batch and returns the scenario the next step
// builds on.
func (h *Harness) executeStep(ctx context.Context, n int, sc *ir.Scenario, step Step, result *Result) *ir.Scenario {
	units := make([]ir.ChangeUnit, len(step.Units))
	for i, u := range step.Units {
		units[i] = u.ChangeUnit()
	}

	out, err := h.svc.ChangeModulesState(ctx, sc.ID, units)
	if err != nil {
		code := errorCode(err)
		result.Steps = append(result.Steps, StepOutcome{Step: n, Error: code})
		if step.ExpectError != code {
			result.AddError(fmt.Sprintf("step %d: unexpected error: %v", n, err))
		}
		return sc
	}

	result.Steps = append(result.Steps, StepOutcome{Step: n, Transitions: out.SortedTransitions()})
	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("step %d: expected error %s, step succeeded", n, step.ExpectError))
	}
	return out
}

func (h *Harness) executeRebuild(ctx context.Context, scenarioID string, reason ir.RebuildReason, result *Result) error {
	st, err := h.svc.StartRebuild(ctx, scenarioID, reason)
	if err != nil {
		return err
	}
	done, err := h.svc.ResumeRebuild(ctx, st.ID)
	if err != nil {
		// The failure is part of the outcome; the persisted state says why.
		h.logger.Debug("rebuild failed", "rebuild", st.ID, "error", err)
		if done, err = h.svc.RebuildStatus(ctx, st.ID); err != nil {
			return err
		}
	}
	result.Rebuild = &RebuildOutcome{
		ID:     done.ID,
		Status: done.Status,
		Error:  done.Error,
		Calls:  h.artifacts.sorted(),
	}
	return nil
}

// errorCode reduces a step error to its rule code when it has one.
func errorCode(err error) string {
	var re *scenario.RuleError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var ce *ir.ConstructionError
	if errors.As(err, &ce) {
		return "invalid_change_unit"
	}
	return err.Error()
}

// recorder is the artifacts collaborator of a harness run. It records
// calls and never fails.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(op string, id ir.ModuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+string(id))
	return nil
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.calls)
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func (r *recorder) Download(_ context.Context, m ir.Module) error { return r.record("download", m.ID) }
func (r *recorder) Unpack(_ context.Context, m ir.Module) error   { return r.record("unpack", m.ID) }
func (r *recorder) Apply(_ context.Context, t ir.Transition) error {
	return r.record("apply", t.ModuleID)
}
func (r *recorder) RunHooks(_ context.Context, t ir.Transition) error {
	return r.record("hooks", t.ModuleID)
}
