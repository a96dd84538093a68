package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
	"github.com/roach88/storebus/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestStore creates a store in a temp directory.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func module(id ir.ModuleID, version string, enabled bool) ir.Module {
	author, name, _ := id.Split()
	return ir.Module{
		ID:        id,
		Author:    author,
		Name:      name,
		Version:   version,
		Type:      ir.ModuleTypePlugin,
		Installed: enabled,
		Enabled:   enabled,
		Licensed:  true,
	}
}

// recordingArtifacts records calls and fails them on demand.
type recordingArtifacts struct {
	mu    sync.Mutex
	calls []string
	// fail maps "op:module" to the error to return; failOnce removes the
	// entry after the first failure.
	fail     map[string]error
	failOnce bool
}

func newRecordingArtifacts() *recordingArtifacts {
	return &recordingArtifacts{fail: map[string]error{}}
}

func (a *recordingArtifacts) record(op string, id ir.ModuleID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := fmt.Sprintf("%s:%s", op, id)
	if err, ok := a.fail[key]; ok {
		if a.failOnce {
			delete(a.fail, key)
		}
		return err
	}
	a.calls = append(a.calls, key)
	return nil
}

func (a *recordingArtifacts) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *recordingArtifacts) count(key string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == key {
			n++
		}
	}
	return n
}

func (a *recordingArtifacts) Download(_ context.Context, m ir.Module) error {
	return a.record("download", m.ID)
}

func (a *recordingArtifacts) Unpack(_ context.Context, m ir.Module) error {
	return a.record("unpack", m.ID)
}

func (a *recordingArtifacts) Apply(_ context.Context, t ir.Transition) error {
	return a.record("apply", t.ModuleID)
}

func (a *recordingArtifacts) RunHooks(_ context.Context, t ir.Transition) error {
	return a.record("hooks", t.ModuleID)
}

// rig wires a resolver and executor over one store.
type rig struct {
	store     *store.Store
	market    *catalog.Memory
	clock     *testutil.ManualClock
	lock      *LockManager
	resolver  *Resolver
	executor  *Executor
	artifacts *recordingArtifacts
}

// newRig seeds an installed set and marketplace and saves scenario
// "sc-1": upgrade XC-Reviews to 1.1, install XC-Wishlist, remove XC-Old.
func newRig(t *testing.T, opts ...ExecutorOption) *rig {
	t.Helper()
	ctx := context.Background()
	s := setupTestStore(t)
	clock := testutil.NewManualClock(testutil.Epoch)

	core := module("CDev-Core", "5.4.0", true)
	core.Type = ir.ModuleTypeCore
	require.NoError(t, s.SaveModules(ctx,
		core,
		module("XC-Reviews", "1.0", true),
		module("XC-Old", "2.0", true),
	))

	market := catalog.NewMemory(
		module("CDev-Core", "5.4.0", false),
		module("XC-Reviews", "1.0", false),
		module("XC-Reviews", "1.1", false),
		module("XC-Wishlist", "2.0", false),
		module("XC-Old", "2.0", false),
	)

	sc := ir.NewScenario("sc-1", ir.ScenarioCommon, clock.Now())
	for _, tr := range []ir.Transition{
		{ModuleID: "XC-Reviews", Kind: ir.KindUpgrade, Version: "1.1", Info: ir.TransitionInfo{Origin: ir.OriginRequest}},
		{ModuleID: "XC-Wishlist", Kind: ir.KindInstallEnabled, Version: "2.0", Info: ir.TransitionInfo{Origin: ir.OriginRequest}},
		{ModuleID: "XC-Old", Kind: ir.KindRemove, Version: "2.0", Info: ir.TransitionInfo{Origin: ir.OriginRequest}},
	} {
		sc.Transitions[tr.ModuleID] = tr
	}
	require.NoError(t, s.SaveScenario(ctx, sc))

	artifacts := newRecordingArtifacts()
	lock := NewLockManager(s,
		WithLockClock(clock),
		WithLockTokens(testutil.NewSequenceGenerator("tok")),
		WithLockLogger(quietLogger()),
	)
	resolver := NewResolver(s, lock,
		WithRebuildIDs(testutil.NewSequenceGenerator("rb")),
		WithResolverClock(clock),
		WithResolverLogger(quietLogger()),
	)
	execOpts := append([]ExecutorOption{
		WithArtifacts(artifacts),
		WithExecutorClock(clock),
		WithExecutorLogger(quietLogger()),
	}, opts...)
	executor := NewExecutor(s, market, lock, execOpts...)

	return &rig{
		store:     s,
		market:    market,
		clock:     clock,
		lock:      lock,
		resolver:  resolver,
		executor:  executor,
		artifacts: artifacts,
	}
}

func (r *rig) installed(t *testing.T) map[ir.ModuleID]ir.Module {
	t.Helper()
	mods, err := r.store.ListModules(context.Background(), catalog.Filter{})
	require.NoError(t, err)
	out := make(map[ir.ModuleID]ir.Module, len(mods))
	for _, m := range mods {
		out[m.ID] = m
	}
	return out
}
