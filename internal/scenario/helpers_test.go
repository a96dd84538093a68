package scenario

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

type modOpt func(*ir.Module)

func deps(ids ...string) modOpt {
	return func(m *ir.Module) {
		for _, id := range ids {
			m.Dependencies = append(m.Dependencies, ir.Dependency{ID: ir.ModuleID(id)})
		}
	}
}

func depMin(id, min string) modOpt {
	return func(m *ir.Module) {
		m.Dependencies = append(m.Dependencies, ir.Dependency{ID: ir.ModuleID(id), MinVersion: min})
	}
}

func incompatible(ids ...string) modOpt {
	return func(m *ir.Module) {
		for _, id := range ids {
			m.Incompatible = append(m.Incompatible, ir.ModuleID(id))
		}
	}
}

func typ(t ir.ModuleType) modOpt { return func(m *ir.Module) { m.Type = t } }
func unlicensed() modOpt         { return func(m *ir.Module) { m.Licensed = false } }
func disabled() modOpt           { return func(m *ir.Module) { m.Enabled = false } }

// available builds a marketplace release.
func available(id, version string, opts ...modOpt) ir.Module {
	m := ir.Module{ID: ir.ModuleID(id), Version: version, Type: ir.ModuleTypePlugin, Licensed: true}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// installed builds an installed, enabled module.
func installed(id, version string, opts ...modOpt) ir.Module {
	m := available(id, version)
	m.Installed = true
	m.Enabled = true
	for _, o := range opts {
		o(&m)
	}
	return m
}

// testEnv puts installed modules in both sources, like a real marketplace
// that also lists what the store runs.
func testEnv(inst []ir.Module, market ...ir.Module) Env {
	mk := catalog.NewMemory(market...)
	for _, m := range inst {
		rel := m
		rel.Installed, rel.Enabled = false, false
		mk.Put(rel)
	}
	return Env{Installed: catalog.NewMemory(inst...), Marketplace: mk}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(env Env, opts ...ProcessorOption) *Processor {
	base := []ProcessorOption{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(quietLogger()),
	}
	return NewProcessor(env, append(base, opts...)...)
}

// kinds reduces a transition map to id -> kind for compact assertions.
func kinds(ts map[ir.ModuleID]ir.Transition) map[ir.ModuleID]ir.TransitionKind {
	out := make(map[ir.ModuleID]ir.TransitionKind, len(ts))
	for id, t := range ts {
		out[id] = t.Kind
	}
	return out
}
