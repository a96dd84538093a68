package scenario

import (
	"context"
	"slices"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// IncompatibleRule disables installed modules that cannot run alongside a
// module being enabled. Incompatibility is symmetric: either side may
// declare it.
type IncompatibleRule struct {
	NoFilter
}

// Name implements Rule.
func (IncompatibleRule) Name() string { return "incompatible" }

// ApplyTransform implements Rule.
func (IncompatibleRule) ApplyTransform(ctx context.Context, t ir.Transition, b *Builder) error {
	env := b.Env()
	enablesNow, err := env.enabledAfter(ctx, b, t.ModuleID)
	if err != nil || !enablesNow {
		return err
	}
	target, err := env.target(ctx, t)
	if err != nil {
		return err
	}

	conflicts := append([]ir.ModuleID(nil), target.Incompatible...)
	enabled, err := env.Installed.List(ctx, catalog.Filter{Enabled: catalog.Bool(true)})
	if err != nil {
		return err
	}
	for _, m := range enabled {
		if m.IncompatibleWith(t.ModuleID) {
			conflicts = append(conflicts, m.ID)
		}
	}
	slices.Sort(conflicts)
	conflicts = slices.Compact(conflicts)

	for _, id := range conflicts {
		if id == t.ModuleID {
			continue
		}
		on, err := env.enabledAfter(ctx, b, id)
		if err != nil {
			return err
		}
		if !on {
			continue
		}
		if _, has := b.Transition(id); has {
			return ruleErrorf(CodeIncompatible, t.ModuleID, "%s is incompatible with %s, which is also scheduled to be enabled", t.ModuleID, id)
		}
		inst, _, err := env.installed(ctx, id)
		if err != nil {
			return err
		}
		disable := ir.Transition{
			ModuleID: id,
			Kind:     ir.KindDisable,
			Info:     ir.TransitionInfo{Origin: ir.OriginConflict},
		}
		if err := b.Propose(disable.FillInfo(inst).WithRequiredBy(t.ModuleID)); err != nil {
			return err
		}
	}
	return nil
}
