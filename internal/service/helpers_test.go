package service

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
	"github.com/roach88/storebus/internal/compiler"
	"github.com/roach88/storebus/internal/config"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
	"github.com/roach88/storebus/internal/testutil"
)

const testStoreURL = "https://shop.example.com"

// callArtifacts records every collaborator call as "op:module".
type callArtifacts struct {
	mu    sync.Mutex
	calls []string
}

func (a *callArtifacts) record(op string, id ir.ModuleID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("%s:%s", op, id))
	return nil
}

func (a *callArtifacts) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *callArtifacts) Download(_ context.Context, m ir.Module) error {
	return a.record("download", m.ID)
}

func (a *callArtifacts) Unpack(_ context.Context, m ir.Module) error {
	return a.record("unpack", m.ID)
}

func (a *callArtifacts) Apply(_ context.Context, t ir.Transition) error {
	return a.record("apply", t.ModuleID)
}

func (a *callArtifacts) RunHooks(_ context.Context, t ir.Transition) error {
	return a.record("hooks", t.ModuleID)
}

type fixture struct {
	svc       *Service
	store     *store.Store
	clock     *testutil.ManualClock
	artifacts *callArtifacts
}

func installed(id ir.ModuleID, version string, typ ir.ModuleType, enabled bool) ir.Module {
	author, name, _ := id.Split()
	return ir.Module{
		ID:        id,
		Author:    author,
		Name:      name,
		Version:   version,
		Type:      typ,
		Installed: true,
		Enabled:   enabled,
		Licensed:  true,
	}
}

// newFixture opens a store seeded with a small installed set and builds a
// service over the testdata catalog:
//
//	CDev-Core 5.4.0 (core), XC-Reviews 1.0, XC-Stripe 3.2 (unlicensed),
//	XC-CrispWhite 5.4 (enabled skin), XC-Fashion 5.4 (disabled skin)
func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	res, errs := compiler.LoadDir(filepath.Join("..", "..", "testdata", "catalog"), compiler.LoadModeFailFast)
	require.Empty(t, errs)

	reviews := installed("XC-Reviews", "1.0", ir.ModuleTypePlugin, true)
	reviews.Dependencies = []ir.Dependency{{ID: "CDev-Core", MinVersion: "5.4"}}
	stripe := installed("XC-Stripe", "3.2", ir.ModuleTypePlugin, true)
	stripe.Licensed = false
	require.NoError(t, st.SaveModules(context.Background(),
		installed("CDev-Core", "5.4.0", ir.ModuleTypeCore, true),
		reviews,
		stripe,
		installed("XC-CrispWhite", "5.4", ir.ModuleTypeSkin, true),
		installed("XC-Fashion", "5.4", ir.ModuleTypeSkin, false),
	))

	cfg := config.Default()
	cfg.StoreURL = testStoreURL
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{
		store:     st,
		clock:     testutil.NewManualClock(testutil.Epoch),
		artifacts: &callArtifacts{},
	}
	f.svc, err = New(st, res.Catalog, cfg,
		WithIDs(testutil.NewSequenceGenerator("id")),
		WithClock(f.clock),
		WithArtifacts(f.artifacts),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) module(t *testing.T, id ir.ModuleID) (ir.Module, bool) {
	t.Helper()
	mods, err := f.store.ListModules(context.Background(), catalogFilter(id))
	require.NoError(t, err)
	if len(mods) == 0 {
		return ir.Module{}, false
	}
	return mods[0], true
}

func kinds(sc *ir.Scenario) map[ir.ModuleID]ir.TransitionKind {
	out := make(map[ir.ModuleID]ir.TransitionKind, len(sc.Transitions))
	for id, tr := range sc.Transitions {
		out[id] = tr.Kind
	}
	return out
}

func catalogFilter(id ir.ModuleID) catalog.Filter {
	return catalog.Filter{IDs: []ir.ModuleID{id}}
}
