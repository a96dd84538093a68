package scenario

import (
	"context"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// convert resolves a change unit against installed state. It returns
// ok=false when the unit asks for the state the module is already in.
func (e Env) convert(ctx context.Context, u ir.ChangeUnit) (ir.Transition, bool, error) {
	inst, installed, err := e.installed(ctx, u.ID)
	if err != nil {
		return ir.Transition{}, false, err
	}
	releases, err := e.Marketplace.Releases(ctx, u.ID)
	if err != nil {
		return ir.Transition{}, false, err
	}
	if !installed && len(releases) == 0 {
		return ir.Transition{}, false, ruleErrorf(CodeUnknownModule, u.ID, "module %s is neither installed nor available", u.ID)
	}

	request := func(kind ir.TransitionKind, version string, meta ir.Module) (ir.Transition, bool, error) {
		t := ir.Transition{
			ModuleID: u.ID,
			Kind:     kind,
			Version:  version,
			Info:     ir.TransitionInfo{Origin: ir.OriginRequest},
		}
		return t.FillInfo(meta), true, nil
	}
	release := func(version string) (ir.Module, error) {
		rel, ok, err := catalog.Release(ctx, e.Marketplace, u.ID, version)
		if err != nil {
			return ir.Module{}, err
		}
		if !ok {
			return ir.Module{}, ruleErrorf(CodeUnknownModule, u.ID, "version %s of %s is not available", version, u.ID)
		}
		return rel, nil
	}

	if installed && inst.Type == ir.ModuleTypeCore && (u.Disable || u.Remove) {
		return ir.Transition{}, false, ruleErrorf(CodeCoreModule, u.ID, "core module %s cannot be %sd", u.ID, u.Action())
	}

	switch u.Action() {
	case ir.ActionInstall, ir.ActionUpgrade:
		if installed && ir.CompareVersions(inst.Version, u.Version) == 0 {
			return ir.Transition{}, false, nil
		}
		rel, err := release(u.Version)
		if err != nil {
			return ir.Transition{}, false, err
		}
		if installed {
			return request(ir.KindUpgrade, rel.Version, rel)
		}
		if u.Inactive {
			return request(ir.KindInstallDisabled, rel.Version, rel)
		}
		return request(ir.KindInstallEnabled, rel.Version, rel)

	case ir.ActionEnable:
		if installed {
			if inst.Enabled {
				return ir.Transition{}, false, nil
			}
			return request(ir.KindEnable, "", inst)
		}
		latest := releases[len(releases)-1]
		return request(ir.KindInstallEnabled, latest.Version, latest)

	case ir.ActionDisable:
		if installed && inst.Enabled {
			return request(ir.KindDisable, "", inst)
		}
		return ir.Transition{}, false, nil

	case ir.ActionRemove:
		if installed {
			return request(ir.KindRemove, "", inst)
		}
		return ir.Transition{}, false, nil
	}
	return ir.Transition{}, false, &ir.ConstructionError{ModuleID: u.ID, Message: "no action requested"}
}
