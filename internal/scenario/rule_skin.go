package scenario

import (
	"context"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// SkinRule keeps at most one skin enabled: enabling a skin disables every
// other enabled skin.
type SkinRule struct {
	NoFilter
}

// Name implements Rule.
func (SkinRule) Name() string { return "skin" }

// ApplyTransform implements Rule.
func (SkinRule) ApplyTransform(ctx context.Context, t ir.Transition, b *Builder) error {
	env := b.Env()
	on, err := env.enabledAfter(ctx, b, t.ModuleID)
	if err != nil || !on {
		return err
	}
	target, err := env.target(ctx, t)
	if err != nil {
		return err
	}
	if target.Type != ir.ModuleTypeSkin {
		return nil
	}

	for id, other := range b.Transitions() {
		if id == t.ModuleID || other.Info.Type != ir.ModuleTypeSkin {
			continue
		}
		otherOn, err := env.enabledAfter(ctx, b, id)
		if err != nil {
			return err
		}
		if otherOn {
			return ruleErrorf(CodeSkinConflict, t.ModuleID, "%s and %s cannot both be enabled skins", t.ModuleID, id)
		}
	}

	skins, err := env.Installed.List(ctx, catalog.Filter{Type: ir.ModuleTypeSkin, Enabled: catalog.Bool(true)})
	if err != nil {
		return err
	}
	for _, s := range skins {
		if s.ID == t.ModuleID {
			continue
		}
		if _, has := b.Transition(s.ID); has {
			// Already scheduled: either going away, or caught above.
			continue
		}
		disable := ir.Transition{
			ModuleID: s.ID,
			Kind:     ir.KindDisable,
			Info:     ir.TransitionInfo{Origin: ir.OriginSkin},
		}
		if err := b.Propose(disable.FillInfo(s).WithRequiredBy(t.ModuleID)); err != nil {
			return err
		}
	}
	return nil
}
