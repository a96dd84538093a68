package scenario

import (
	"context"
	"slices"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// after returns the module as it will be once the scenario is applied,
// and whether it will be installed and enabled.
func (b *Builder) after(ctx context.Context, id ir.ModuleID) (ir.Module, bool, bool, error) {
	inst, ok, err := b.env.installed(ctx, id)
	if err != nil {
		return ir.Module{}, false, false, err
	}
	t, has := b.transitions[id]
	if !has {
		return inst, ok, ok && inst.Enabled, nil
	}
	if t.Kind == ir.KindRemove {
		return ir.Module{}, false, false, nil
	}
	m, err := b.env.target(ctx, t)
	if err != nil {
		return ir.Module{}, false, false, err
	}
	return m, true, t.Kind.EnabledAfter(ok && inst.Enabled), nil
}

// validateClosure checks that every module the scenario touches, and every
// enabled module depending on one it touches, ends up with its
// dependencies in place.
func (b *Builder) validateClosure(ctx context.Context) error {
	check := make(map[ir.ModuleID]bool)
	for id, t := range b.transitions {
		if !t.Kind.Deactivates() {
			check[id] = true
		}
	}

	enabled, err := b.env.Installed.List(ctx, catalog.Filter{Enabled: catalog.Bool(true)})
	if err != nil {
		return err
	}
	for _, m := range enabled {
		if _, has := b.transitions[m.ID]; has {
			continue
		}
		for _, d := range m.Dependencies {
			if _, has := b.transitions[d.ID]; has {
				check[m.ID] = true
				break
			}
		}
	}

	ids := make([]ir.ModuleID, 0, len(check))
	for id := range check {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		mod, installed, enabledAfter, err := b.after(ctx, id)
		if err != nil {
			return err
		}
		if !installed {
			continue
		}
		t, has := b.transitions[id]
		if !enabledAfter && !(has && versioned(t.Kind)) {
			continue
		}
		for _, dep := range mod.Dependencies {
			dm, depInstalled, depEnabled, err := b.after(ctx, dep.ID)
			if err != nil {
				return err
			}
			switch {
			case !depInstalled:
				return ruleErrorf(CodeUnresolvedDependency, id, "%s requires %s, which will not be installed", id, dep.ID)
			case !dep.SatisfiedBy(dm.Version):
				return ruleErrorf(CodeUnresolvedDependency, id, "%s requires %s >= %s, found %s", id, dep.ID, dep.MinVersion, dm.Version)
			case enabledAfter && !depEnabled:
				return ruleErrorf(CodeUnresolvedDependency, id, "%s requires %s to be enabled", id, dep.ID)
			}
		}
	}
	return nil
}
