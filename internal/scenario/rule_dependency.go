package scenario

import (
	"context"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// DependencyRule pulls in the hard dependencies of every module that stays
// installed: installs missing ones, upgrades outdated ones and enables
// disabled ones when the parent is going to be enabled.
//
// A missing dependency is installed enabled when the parent ends up
// enabled and disabled otherwise.
type DependencyRule struct {
	NoFilter
}

// Name implements Rule.
func (DependencyRule) Name() string { return "dependency" }

// ApplyTransform implements Rule.
func (r DependencyRule) ApplyTransform(ctx context.Context, t ir.Transition, b *Builder) error {
	if t.Kind.Deactivates() {
		return nil
	}
	env := b.Env()
	target, err := env.target(ctx, t)
	if err != nil {
		return err
	}
	inst, ok, err := env.installed(ctx, t.ModuleID)
	if err != nil {
		return err
	}
	enables := t.Kind.EnabledAfter(ok && inst.Enabled)

	for _, dep := range target.Dependencies {
		if err := r.require(ctx, b, t.ModuleID, dep, enables); err != nil {
			return err
		}
	}
	return nil
}

func (r DependencyRule) require(ctx context.Context, b *Builder, parent ir.ModuleID, dep ir.Dependency, enables bool) error {
	env := b.Env()
	inst, installed, err := env.installed(ctx, dep.ID)
	if err != nil {
		return err
	}

	if cur, has := b.Transition(dep.ID); has {
		switch {
		case cur.Kind == ir.KindRemove:
			return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s, which is scheduled for removal", parent, dep.ID)
		case cur.Kind == ir.KindDisable && enables:
			return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s enabled, but it is scheduled to be disabled", parent, dep.ID)
		case cur.Kind == ir.KindDisable:
			return nil
		case versioned(cur.Kind):
			if dep.SatisfiedBy(cur.Version) {
				kind := cur.Kind
				if enables && kind == ir.KindInstallDisabled {
					kind = ir.KindInstallEnabled
				}
				if cur.Kind == ir.KindUpgrade && enables && !(installed && inst.Enabled) {
					return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s enabled, but it is only scheduled for an upgrade", parent, dep.ID)
				}
				return b.Propose(dependencyTransition(dep.ID, kind, cur.Version, cur.Info, parent))
			}
			if cur.Requested() {
				return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s >= %s, but %s was requested", parent, dep.ID, dep.MinVersion, cur.Version)
			}
		case cur.Kind == ir.KindEnable:
			if installed && !dep.SatisfiedBy(inst.Version) {
				return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s >= %s, which would have to be upgraded and enabled", parent, dep.ID, dep.MinVersion)
			}
			return b.Propose(dependencyTransition(dep.ID, ir.KindEnable, "", cur.Info, parent))
		}
	}

	if !installed {
		rel, found, err := catalog.Satisfying(ctx, env.Marketplace, dep)
		if err != nil {
			return err
		}
		if !found {
			return unresolved(parent, dep)
		}
		kind := ir.KindInstallDisabled
		if enables {
			kind = ir.KindInstallEnabled
		}
		return b.Propose(dependencyTransition(dep.ID, kind, rel.Version, ir.TransitionInfo{}, parent).FillInfo(rel))
	}

	if !dep.SatisfiedBy(inst.Version) {
		rel, found, err := catalog.Satisfying(ctx, env.Marketplace, dep)
		if err != nil {
			return err
		}
		if !found {
			return unresolved(parent, dep)
		}
		if enables && !inst.Enabled {
			return ruleErrorf(CodeDependencyConflict, parent, "%s requires %s >= %s, which would have to be upgraded and enabled", parent, dep.ID, dep.MinVersion)
		}
		return b.Propose(dependencyTransition(dep.ID, ir.KindUpgrade, rel.Version, ir.TransitionInfo{}, parent).FillInfo(rel))
	}

	if enables && !inst.Enabled {
		return b.Propose(dependencyTransition(dep.ID, ir.KindEnable, "", ir.TransitionInfo{}, parent).FillInfo(inst))
	}
	return nil
}

func dependencyTransition(id ir.ModuleID, kind ir.TransitionKind, version string, info ir.TransitionInfo, parent ir.ModuleID) ir.Transition {
	t := ir.Transition{
		ModuleID: id,
		Kind:     kind,
		Version:  version,
		Info: ir.TransitionInfo{
			ModuleName: info.ModuleName,
			Type:       info.Type,
			Origin:     ir.OriginDependency,
		},
	}
	return t.WithRequiredBy(parent)
}

func unresolved(parent ir.ModuleID, dep ir.Dependency) error {
	if dep.MinVersion != "" {
		return ruleErrorf(CodeUnresolvedDependency, parent, "%s requires %s >= %s, which is not available", parent, dep.ID, dep.MinVersion)
	}
	return ruleErrorf(CodeUnresolvedDependency, parent, "%s requires %s, which is not available", parent, dep.ID)
}
