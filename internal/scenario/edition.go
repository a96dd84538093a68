package scenario

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// EditionChangeUnits translates switching the store to an edition into
// change units: edition modules are installed or enabled, enabled plugins
// and skins outside the edition are disabled. Core and service modules are
// left alone. Units come out ordered by module id, enables first.
func EditionChangeUnits(ctx context.Context, env Env, ed catalog.Edition) ([]ir.ChangeUnit, error) {
	installed, err := env.Installed.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list installed modules: %w", err)
	}
	byID := make(map[ir.ModuleID]ir.Module, len(installed))
	for _, m := range installed {
		byID[m.ID] = m
	}

	var enable, disable []ir.ChangeUnit
	for _, id := range sortedIDs(ed.Modules) {
		m, ok := byID[id]
		switch {
		case ok && m.Enabled:
			continue
		case ok:
			enable = append(enable, ir.ChangeUnit{ID: id, Enable: true})
		default:
			latest, found, err := catalog.Latest(ctx, env.Marketplace, id)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, ruleErrorf(CodeUnknownModule, id, "edition %s includes %s, which is not available", ed.Name, id)
			}
			enable = append(enable, ir.ChangeUnit{ID: id, Install: true, Version: latest.Version})
		}
	}

	for _, m := range installed {
		if !m.Enabled || ed.Includes(m.ID) {
			continue
		}
		if m.Type != ir.ModuleTypePlugin && m.Type != ir.ModuleTypeSkin {
			continue
		}
		disable = append(disable, ir.ChangeUnit{ID: m.ID, Disable: true})
	}

	return append(enable, disable...), nil
}

func sortedIDs(ids []ir.ModuleID) []ir.ModuleID {
	out := append([]ir.ModuleID(nil), ids...)
	slices.Sort(out)
	return slices.Compact(out)
}
