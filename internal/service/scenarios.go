package service

import (
	"context"
	"fmt"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

// StandardSkin names the built-in look: choosing it disables every skin.
const StandardSkin = "standard"

// CreateArgs are the caller-supplied fields of a new scenario.
type CreateArgs struct {
	Type      ir.ScenarioType
	ReturnURL string
}

// Find loads a scenario. A missing scenario yields an error wrapping
// store.ErrNotFound.
func (s *Service) Find(ctx context.Context, id string) (*ir.Scenario, error) {
	sc, err := s.store.FindScenario(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return sc, nil
}

// CreateScenario saves an empty scenario.
func (s *Service) CreateScenario(ctx context.Context, args CreateArgs) (*ir.Scenario, error) {
	if err := s.checkMutable("create scenario"); err != nil {
		return nil, err
	}
	if args.Type != "" && !args.Type.Valid() {
		return nil, fmt.Errorf("create scenario: %w: unknown type %q", ErrInvalidRequest, args.Type)
	}

	sc := s.newScenario(args.Type, args.ReturnURL)
	if err := s.store.SaveScenario(ctx, sc); err != nil {
		return nil, fmt.Errorf("create scenario: %w", err)
	}
	s.logger.Info("scenario created", "scenario", sc.ID, "type", sc.Type)
	return sc, nil
}

// DiscardScenario deletes a scenario and its finished rebuilds. A scenario
// the running rebuild executes cannot be discarded.
func (s *Service) DiscardScenario(ctx context.Context, id string) (string, error) {
	if err := s.checkMutable("discard scenario"); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("discard scenario: %w: no scenario id given", ErrInvalidRequest)
	}

	active, ok, err := s.store.ActiveRebuild(ctx)
	if err != nil {
		return "", fmt.Errorf("discard scenario: %w", err)
	}
	if ok && active.ScenarioID == id {
		return "", fmt.Errorf("discard scenario %s: %w (rebuild %s)", id, ErrScenarioInUse, active.ID)
	}

	if err := s.store.RemoveScenario(ctx, id); err != nil {
		return "", fmt.Errorf("discard scenario: %w", err)
	}
	s.logger.Info("scenario discarded", "scenario", id)
	return id, nil
}

// ChangeModulesState applies change units to a stored scenario. A scenario
// the running rebuild executes cannot be changed.
func (s *Service) ChangeModulesState(ctx context.Context, scenarioID string, units []ir.ChangeUnit) (*ir.Scenario, error) {
	if err := s.checkMutable("change modules state"); err != nil {
		return nil, err
	}
	sc, err := s.store.FindScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("change modules state: %w", err)
	}
	active, ok, err := s.store.ActiveRebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("change modules state: %w", err)
	}
	if ok && active.ScenarioID == scenarioID {
		return nil, fmt.Errorf("change modules state %s: %w (rebuild %s)", scenarioID, ErrScenarioInUse, active.ID)
	}
	out, err := s.process(ctx, sc, units)
	if err != nil {
		return nil, fmt.Errorf("change modules state %s: %w", scenarioID, err)
	}
	return out, nil
}

// ChangeSkinState saves a new scenario that switches the store to one
// installed skin, or to no skin at all for StandardSkin.
func (s *Service) ChangeSkinState(ctx context.Context, moduleID ir.ModuleID, args CreateArgs) (*ir.Scenario, error) {
	if err := s.checkMutable("change skin"); err != nil {
		return nil, err
	}

	installed := s.store.Installed()
	enabled, err := installed.List(ctx, catalog.Filter{
		Type:      ir.ModuleTypeSkin,
		Installed: catalog.Bool(true),
		Enabled:   catalog.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("change skin: %w", err)
	}

	var units []ir.ChangeUnit
	for _, m := range enabled {
		units = append(units, ir.ChangeUnit{ID: m.ID, Disable: true})
	}

	if moduleID != StandardSkin {
		skins, err := installed.List(ctx, catalog.Filter{
			IDs:       []ir.ModuleID{moduleID},
			Type:      ir.ModuleTypeSkin,
			Installed: catalog.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("change skin: %w", err)
		}
		if len(skins) == 0 {
			return nil, fmt.Errorf("change skin: installed skin %s: %w", moduleID, store.ErrNotFound)
		}
		units = append(units, ir.ChangeUnit{ID: moduleID, Enable: true})
	}

	out, err := s.process(ctx, s.newScenario(args.Type, args.ReturnURL), units)
	if err != nil {
		return nil, fmt.Errorf("change skin to %s: %w", moduleID, err)
	}
	return out, nil
}

// RemoveUnallowedModules saves a new scenario removing every installed
// module the store has no license for.
func (s *Service) RemoveUnallowedModules(ctx context.Context) (*ir.Scenario, error) {
	if err := s.checkMutable("remove unallowed modules"); err != nil {
		return nil, err
	}
	units, err := s.unallowedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("remove unallowed modules: %w", err)
	}
	out, err := s.process(ctx, s.newScenario(ir.ScenarioCommon, ""), units)
	if err != nil {
		return nil, fmt.Errorf("remove unallowed modules: %w", err)
	}
	return out, nil
}

func (s *Service) unallowedUnits(ctx context.Context) ([]ir.ChangeUnit, error) {
	unallowed, err := s.store.Installed().List(ctx, catalog.Filter{
		Installed: catalog.Bool(true),
		Licensed:  catalog.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	units := make([]ir.ChangeUnit, 0, len(unallowed))
	for _, m := range unallowed {
		units = append(units, ir.ChangeUnit{ID: m.ID, Remove: true})
	}
	return units, nil
}

// VerifyScenario recomputes a stored scenario and reports drift against
// the installed modules.
func (s *Service) VerifyScenario(ctx context.Context, id string) error {
	sc, err := s.store.FindScenario(ctx, id)
	if err != nil {
		return fmt.Errorf("verify scenario: %w", err)
	}
	return s.processor.Verify(ctx, sc)
}

// ListScenarios returns stored scenarios, oldest first. An empty typ
// lists every type.
func (s *Service) ListScenarios(ctx context.Context, typ ir.ScenarioType) ([]*ir.Scenario, error) {
	return s.store.ListScenarios(ctx, typ)
}
