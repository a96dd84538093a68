package scenario

import (
	"context"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// DependentsRule handles enabled modules that depend on a module being
// removed or disabled. Under PolicyCascade they are disabled as well;
// under PolicyVeto the scenario is rejected.
type DependentsRule struct {
	NoFilter
	Policy DependentsPolicy
}

// Name implements Rule.
func (DependentsRule) Name() string { return "dependents" }

// ApplyTransform implements Rule.
func (r DependentsRule) ApplyTransform(ctx context.Context, t ir.Transition, b *Builder) error {
	if !t.Kind.Deactivates() {
		return nil
	}
	env := b.Env()
	enabled, err := env.Installed.List(ctx, catalog.Filter{Enabled: catalog.Bool(true)})
	if err != nil {
		return err
	}

	for _, m := range enabled {
		if m.ID == t.ModuleID {
			continue
		}
		cur, has := b.Transition(m.ID)
		if has && cur.Kind.Deactivates() {
			continue
		}
		after := m
		if has {
			if after, err = env.target(ctx, cur); err != nil {
				return err
			}
		}
		if !after.DependsOn(t.ModuleID) {
			continue
		}

		if r.Policy == PolicyVeto {
			return ruleErrorf(CodeDependentsBlock, t.ModuleID, "cannot %s %s: %s depends on it", t.Kind, t.ModuleID, m.ID)
		}
		if has && cur.Requested() {
			return ruleErrorf(CodeDependencyConflict, m.ID, "%s was requested to %s but depends on %s, which is scheduled to %s", m.ID, cur.Kind, t.ModuleID, t.Kind)
		}
		disable := ir.Transition{
			ModuleID: m.ID,
			Kind:     ir.KindDisable,
			Info:     ir.TransitionInfo{Origin: ir.OriginConflict},
		}
		if err := b.Propose(disable.FillInfo(m).WithRequiredBy(t.ModuleID)); err != nil {
			return err
		}
	}
	return nil
}
