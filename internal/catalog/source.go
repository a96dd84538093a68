package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/storebus/internal/ir"
)

// Source is a read-only view over module metadata.
type Source interface {
	// Releases returns every known release of id, oldest first.
	// An unknown id yields an empty slice and no error.
	Releases(ctx context.Context, id ir.ModuleID) ([]ir.Module, error)

	// List returns the newest release of every module matching f,
	// ordered by id.
	List(ctx context.Context, f Filter) ([]ir.Module, error)
}

// Filter narrows a listing. Zero fields match anything.
type Filter struct {
	IDs       []ir.ModuleID
	Type      ir.ModuleType
	Installed *bool
	Enabled   *bool
	Licensed  *bool
}

// Bool returns a pointer for Filter fields.
func Bool(b bool) *bool { return &b }

// Match reports whether m passes the filter.
func (f Filter) Match(m ir.Module) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, m.ID) {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Installed != nil && m.Installed != *f.Installed {
		return false
	}
	if f.Enabled != nil && m.Enabled != *f.Enabled {
		return false
	}
	if f.Licensed != nil && m.Licensed != *f.Licensed {
		return false
	}
	return true
}

// Latest returns the newest release of id.
func Latest(ctx context.Context, src Source, id ir.ModuleID) (ir.Module, bool, error) {
	releases, err := src.Releases(ctx, id)
	if err != nil {
		return ir.Module{}, false, fmt.Errorf("releases of %s: %w", id, err)
	}
	if len(releases) == 0 {
		return ir.Module{}, false, nil
	}
	return releases[len(releases)-1], true, nil
}

// Release returns the release of id with exactly the given version.
func Release(ctx context.Context, src Source, id ir.ModuleID, version string) (ir.Module, bool, error) {
	releases, err := src.Releases(ctx, id)
	if err != nil {
		return ir.Module{}, false, fmt.Errorf("releases of %s: %w", id, err)
	}
	for _, m := range releases {
		if ir.CompareVersions(m.Version, version) == 0 {
			return m, true, nil
		}
	}
	return ir.Module{}, false, nil
}

// Satisfying returns the newest release that meets the dependency's
// minimum version.
func Satisfying(ctx context.Context, src Source, dep ir.Dependency) (ir.Module, bool, error) {
	releases, err := src.Releases(ctx, dep.ID)
	if err != nil {
		return ir.Module{}, false, fmt.Errorf("releases of %s: %w", dep.ID, err)
	}
	for i := len(releases) - 1; i >= 0; i-- {
		if dep.SatisfiedBy(releases[i].Version) {
			return releases[i], true, nil
		}
	}
	return ir.Module{}, false, nil
}
