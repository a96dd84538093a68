package catalog

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/storebus/internal/ir"
)

// Memory is an in-memory Source. The marketplace catalog loaded from CUE
// files lives in one, and tests use it for installed state as well.
type Memory struct {
	mu       sync.RWMutex
	releases map[ir.ModuleID][]ir.Module
}

var _ Source = (*Memory)(nil)

// NewMemory builds a catalog from the given releases.
func NewMemory(modules ...ir.Module) *Memory {
	m := &Memory{releases: make(map[ir.ModuleID][]ir.Module)}
	for _, mod := range modules {
		m.Put(mod)
	}
	return m
}

// Put adds a release, replacing one with the same id and version.
func (m *Memory) Put(mod ir.Module) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.releases[mod.ID]
	list = slices.DeleteFunc(list, func(existing ir.Module) bool {
		return ir.CompareVersions(existing.Version, mod.Version) == 0
	})
	list = append(list, mod.Clone())
	slices.SortStableFunc(list, func(a, b ir.Module) int {
		return ir.CompareVersions(a.Version, b.Version)
	})
	m.releases[mod.ID] = list
}

// Remove drops every release of id.
func (m *Memory) Remove(id ir.ModuleID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.releases, id)
}

// Releases implements Source.
func (m *Memory) Releases(_ context.Context, id ir.ModuleID) ([]ir.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.releases[id]
	out := make([]ir.Module, len(list))
	for i, mod := range list {
		out[i] = mod.Clone()
	}
	return out, nil
}

// List implements Source.
func (m *Memory) List(_ context.Context, f Filter) ([]ir.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ir.Module
	for _, list := range m.releases {
		if len(list) == 0 {
			continue
		}
		latest := list[len(list)-1]
		if f.Match(latest) {
			out = append(out, latest.Clone())
		}
	}
	slices.SortFunc(out, func(a, b ir.Module) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Len returns the number of distinct module ids.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.releases)
}
