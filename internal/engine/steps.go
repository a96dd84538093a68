package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

// DefaultBatchSize is how many modules a per-module step handles in one
// call.
const DefaultBatchSize = 10

// downloadParallelism bounds concurrent pack downloads within one batch.
const downloadParallelism = 4

// StepEnv is what a step sees while it runs.
type StepEnv struct {
	Rebuild     ir.RebuildState
	Scenario    *ir.Scenario
	Installed   catalog.Source
	Marketplace catalog.Source
	Store       *store.Store
	Artifacts   Artifacts
	Now         time.Time
	BatchSize   int
	Logger      *slog.Logger
}

// Step is one unit of a rebuild plan.
//
// Run does a slice of the step's work, starting from data (the progress
// recorded by earlier calls), and returns the new progress and whether the
// step is complete. On error the returned data, when non-nil, is still
// persisted so finished modules are not redone.
type Step interface {
	ID() string
	Run(ctx context.Context, env *StepEnv, data ir.IRObject) (ir.IRObject, bool, error)
}

// DefaultSteps returns the built-in step catalog keyed by id.
func DefaultSteps() map[string]Step {
	steps := []Step{
		&moduleStep{id: StepDownloadPacks, selects: needsPack, parallel: downloadParallelism, do: downloadPack},
		&moduleStep{id: StepUnpackPacks, selects: needsPack, parallel: 1, do: unpackPack},
		&moduleStep{id: StepApplyChanges, selects: anyTransition, parallel: 1, do: applyChange},
		updateModulesListStep{},
		&moduleStep{id: StepRunHooks, selects: needsHooks, parallel: 1, do: runHooks},
		updateScriptStateStep{},
	}
	out := make(map[string]Step, len(steps))
	for _, s := range steps {
		out[s.ID()] = s
	}
	return out
}

func needsPack(t ir.Transition) bool {
	return t.Kind.Installs() || t.Kind == ir.KindUpgrade
}

func needsHooks(t ir.Transition) bool {
	return t.Kind != ir.KindRemove
}

func anyTransition(ir.Transition) bool { return true }

// moduleStep walks the scenario transitions in id order, a batch per call,
// recording finished module ids under "done".
type moduleStep struct {
	id       string
	selects  func(ir.Transition) bool
	parallel int
	do       func(ctx context.Context, env *StepEnv, t ir.Transition) error
}

func (s *moduleStep) ID() string { return s.id }

func (s *moduleStep) Run(ctx context.Context, env *StepEnv, data ir.IRObject) (ir.IRObject, bool, error) {
	done := data.GetStrings("done")

	var pending []ir.Transition
	for _, t := range env.Scenario.SortedTransitions() {
		if s.selects(t) && !slices.Contains(done, string(t.ModuleID)) {
			pending = append(pending, t)
		}
	}
	batch := pending
	if env.BatchSize > 0 && len(batch) > env.BatchSize {
		batch = batch[:env.BatchSize]
	}

	var (
		mu        sync.Mutex
		processed int
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(max(s.parallel, 1))
	for _, t := range batch {
		grp.Go(func() error {
			if grpCtx.Err() != nil {
				// An earlier module failed; leave the rest for the retry.
				return nil
			}
			if err := s.do(grpCtx, env, t); err != nil {
				return &StepError{Step: s.id, Module: string(t.ModuleID), Fatal: isFatal(err), Err: err}
			}
			mu.Lock()
			done = append(done, string(t.ModuleID))
			processed++
			mu.Unlock()
			return nil
		})
	}
	err := grp.Wait()
	if err == nil {
		err = ctx.Err()
	}

	slices.Sort(done)
	next := data.Clone()
	if next == nil {
		next = ir.IRObject{}
	}
	next["done"] = ir.StringArray(done...)
	if err != nil {
		return next, false, err
	}

	env.Logger.Debug("step batch finished",
		"step", s.id,
		"processed", processed,
		"remaining", len(pending)-processed,
	)
	return next, processed == len(pending), nil
}

// release finds the marketplace release a transition targets.
func release(ctx context.Context, env *StepEnv, t ir.Transition) (ir.Module, error) {
	m, ok, err := catalog.Release(ctx, env.Marketplace, t.ModuleID, t.Version)
	if err != nil {
		return ir.Module{}, err
	}
	if !ok {
		return ir.Module{}, Fatal(fmt.Errorf("no marketplace release %s %s", t.ModuleID, t.Version))
	}
	return m, nil
}

func downloadPack(ctx context.Context, env *StepEnv, t ir.Transition) error {
	m, err := release(ctx, env, t)
	if err != nil {
		return err
	}
	return env.Artifacts.Download(ctx, m)
}

func unpackPack(ctx context.Context, env *StepEnv, t ir.Transition) error {
	m, err := release(ctx, env, t)
	if err != nil {
		return err
	}
	return env.Artifacts.Unpack(ctx, m)
}

func applyChange(ctx context.Context, env *StepEnv, t ir.Transition) error {
	return env.Artifacts.Apply(ctx, t)
}

func runHooks(ctx context.Context, env *StepEnv, t ir.Transition) error {
	return env.Artifacts.RunHooks(ctx, t)
}

// updateModulesListStep writes the post-rebuild module set to the
// installed_modules table in one transaction.
type updateModulesListStep struct{}

func (updateModulesListStep) ID() string { return StepUpdateModulesList }

func (updateModulesListStep) Run(ctx context.Context, env *StepEnv, data ir.IRObject) (ir.IRObject, bool, error) {
	var (
		upserts []ir.Module
		removes []ir.ModuleID
	)
	for _, t := range env.Scenario.SortedTransitions() {
		current, installed, err := catalog.Latest(ctx, env.Installed, t.ModuleID)
		if err != nil {
			return nil, false, &StepError{Step: StepUpdateModulesList, Module: string(t.ModuleID), Err: err}
		}

		switch t.Kind {
		case ir.KindRemove:
			removes = append(removes, t.ModuleID)
		case ir.KindEnable, ir.KindDisable:
			if !installed {
				return nil, false, &StepError{
					Step:   StepUpdateModulesList,
					Module: string(t.ModuleID),
					Fatal:  true,
					Err:    fmt.Errorf("cannot %s a module that is not installed", t.Kind),
				}
			}
			m := current.Clone()
			m.Enabled = t.Kind.EnabledAfter(current.Enabled)
			upserts = append(upserts, m)
		default:
			rel, err := release(ctx, env, t)
			if err != nil {
				return nil, false, &StepError{Step: StepUpdateModulesList, Module: string(t.ModuleID), Fatal: isFatal(err), Err: err}
			}
			m := rel.Clone()
			m.Installed = true
			m.Enabled = t.Kind.EnabledAfter(installed && current.Enabled)
			upserts = append(upserts, m)
		}
	}

	if err := env.Store.ApplyModules(ctx, upserts, removes); err != nil {
		return nil, false, &StepError{Step: StepUpdateModulesList, Err: err}
	}

	env.Logger.Info("modules list updated",
		"rebuild", env.Rebuild.ID,
		"upserted", len(upserts),
		"removed", len(removes),
	)
	next := data.Clone()
	if next == nil {
		next = ir.IRObject{}
	}
	next["upserted"] = ir.IRInt(len(upserts))
	next["removed"] = ir.IRInt(len(removes))
	return next, true, nil
}

// Script state keys written at the end of every rebuild.
const (
	ScriptStateLastRebuild  = "last_rebuild"
	ScriptStateLastScenario = "last_scenario"
	ScriptStateModules      = "installed_modules"
)

// updateScriptStateStep records which rebuild ran last and the resulting
// module versions.
type updateScriptStateStep struct{}

func (updateScriptStateStep) ID() string { return StepUpdateScriptState }

func (updateScriptStateStep) Run(ctx context.Context, env *StepEnv, data ir.IRObject) (ir.IRObject, bool, error) {
	mods, err := env.Installed.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, false, &StepError{Step: StepUpdateScriptState, Err: err}
	}
	versions := make(map[string]any, len(mods))
	for _, m := range mods {
		versions[string(m.ID)] = m.Version
	}
	snapshot, err := ir.MarshalCanonical(versions)
	if err != nil {
		return nil, false, &StepError{Step: StepUpdateScriptState, Fatal: true, Err: err}
	}

	values := [][2]string{
		{ScriptStateLastRebuild, env.Rebuild.ID},
		{ScriptStateLastScenario, env.Scenario.ID},
		{ScriptStateModules, string(snapshot)},
	}
	for _, kv := range values {
		if err := env.Store.SetScriptState(ctx, kv[0], kv[1], env.Now); err != nil {
			return nil, false, &StepError{Step: StepUpdateScriptState, Err: err}
		}
	}
	return data.Clone(), true, nil
}
