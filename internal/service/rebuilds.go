package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/engine"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
	"github.com/roach88/storebus/internal/store"
)

// StoreMetadataEdition is the store metadata key a scenario built by
// RebuildToEdition records the edition under.
const StoreMetadataEdition = "editionName"

// StartRebuild starts a rebuild of a stored scenario.
func (s *Service) StartRebuild(ctx context.Context, scenarioID string, reason ir.RebuildReason) (ir.RebuildState, error) {
	if err := s.checkMutable("start rebuild"); err != nil {
		return ir.RebuildState{}, err
	}
	return s.resolver.StartRebuild(ctx, scenarioID, reason)
}

// ResumeRebuild runs a rebuild from its persisted step until it completes
// or a step fails. An empty id resumes the running rebuild.
func (s *Service) ResumeRebuild(ctx context.Context, id string) (ir.RebuildState, error) {
	if err := s.checkMutable("resume rebuild"); err != nil {
		return ir.RebuildState{}, err
	}
	if id == "" {
		active, ok, err := s.store.ActiveRebuild(ctx)
		if err != nil {
			return ir.RebuildState{}, fmt.Errorf("resume rebuild: %w", err)
		}
		if !ok {
			return ir.RebuildState{}, fmt.Errorf("resume rebuild: %w", ErrNoActiveRebuild)
		}
		id = active.ID
	}
	return s.executor.Run(ctx, id)
}

// RebuildStatus returns a rebuild's persisted state. An empty id returns
// the running rebuild.
func (s *Service) RebuildStatus(ctx context.Context, id string) (ir.RebuildState, error) {
	if id != "" {
		st, err := s.store.FindRebuild(ctx, id)
		if err != nil {
			return ir.RebuildState{}, fmt.Errorf("rebuild status: %w", err)
		}
		return st, nil
	}
	active, ok, err := s.store.ActiveRebuild(ctx)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("rebuild status: %w", err)
	}
	if !ok {
		return ir.RebuildState{}, fmt.Errorf("rebuild status: %w", ErrNoActiveRebuild)
	}
	return active, nil
}

// Redeploy starts a rebuild that changes no module and only redeploys the
// installed code.
func (s *Service) Redeploy(ctx context.Context, returnURL string) (ir.RebuildState, error) {
	if err := s.checkMutable("redeploy"); err != nil {
		return ir.RebuildState{}, err
	}
	if err := s.ensureIdle(ctx); err != nil {
		return ir.RebuildState{}, fmt.Errorf("redeploy: %w", err)
	}
	sc, err := s.process(ctx, s.newScenario(ir.ScenarioCommon, returnURL), nil)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("redeploy: %w", err)
	}
	return s.start(ctx, sc, ir.ReasonRedeploy)
}

// InstallRequest describes a fresh store install.
type InstallRequest struct {
	// CoreVersion pins the core release; empty means the newest.
	CoreVersion string
	// Enabled lists the modules installed enabled; every other plugin and
	// skin of the marketplace is installed disabled.
	Enabled   []ir.ModuleID
	ReturnURL string
}

// Install resets the installed module set to the core modules and starts
// an install rebuild of every plugin and skin in the marketplace.
func (s *Service) Install(ctx context.Context, req InstallRequest) (ir.RebuildState, error) {
	if err := s.checkMutable("install"); err != nil {
		return ir.RebuildState{}, err
	}
	all, err := s.catalog.Marketplace.List(ctx, catalog.Filter{})
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("install: %w", err)
	}

	var (
		core  []ir.Module
		units []ir.ChangeUnit
	)
	for _, m := range all {
		switch m.Type {
		case ir.ModuleTypeCore, ir.ModuleTypeService:
			rel := m
			if req.CoreVersion != "" && m.Type == ir.ModuleTypeCore {
				var ok bool
				rel, ok, err = catalog.Release(ctx, s.catalog.Marketplace, m.ID, req.CoreVersion)
				if err != nil {
					return ir.RebuildState{}, fmt.Errorf("install: %w", err)
				}
				if !ok {
					return ir.RebuildState{}, fmt.Errorf("install: %w: no release %s of %s", ErrInvalidRequest, req.CoreVersion, m.ID)
				}
			}
			rel.Installed, rel.Enabled = true, true
			core = append(core, rel)
		default:
			units = append(units, ir.ChangeUnit{
				ID:       m.ID,
				Install:  true,
				Version:  m.Version,
				Inactive: !slices.Contains(req.Enabled, m.ID),
			})
		}
	}
	if !slices.ContainsFunc(core, func(m ir.Module) bool { return m.Type == ir.ModuleTypeCore }) {
		return ir.RebuildState{}, fmt.Errorf("install: %w: marketplace has no core module", ErrInvalidRequest)
	}

	// The scenario is built against the core-only store it will run on.
	// Nothing is written until it builds.
	fresh := scenario.Env{Installed: catalog.NewMemory(core...), Marketplace: s.catalog.Marketplace}
	sc, err := s.processor.ForEnv(fresh).Process(ctx, s.newScenario(ir.ScenarioInstall, req.ReturnURL), units)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("install: %w", err)
	}

	if err := s.preempt(ctx, "install"); err != nil {
		return ir.RebuildState{}, fmt.Errorf("install: %w", err)
	}
	if err := s.store.ResetModules(ctx, core, sc); err != nil {
		return ir.RebuildState{}, fmt.Errorf("install: %w", err)
	}
	return s.resolver.StartRebuild(ctx, sc.ID, ir.ReasonInstall)
}

// RebuildToEdition starts a rebuild that switches the store to the named
// edition.
func (s *Service) RebuildToEdition(ctx context.Context, editionName, returnURL string) (ir.RebuildState, error) {
	if err := s.checkMutable("rebuild to edition"); err != nil {
		return ir.RebuildState{}, err
	}
	ed, err := s.catalog.Editions.Get(editionName)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("rebuild to edition: %w: %w", ErrInvalidRequest, err)
	}

	if err := s.ensureIdle(ctx); err != nil {
		return ir.RebuildState{}, fmt.Errorf("rebuild to edition %s: %w", editionName, err)
	}
	units, err := scenario.EditionChangeUnits(ctx, s.processor.Env(), ed)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("rebuild to edition %s: %w", editionName, err)
	}

	sc := s.newScenario(ir.ScenarioCommon, returnURL)
	sc.StoreMetadata = ir.IRObject{StoreMetadataEdition: ir.IRString(ed.Name)}
	sc, err = s.process(ctx, sc, units)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("rebuild to edition %s: %w", editionName, err)
	}
	return s.start(ctx, sc, ir.ReasonModuleState)
}

// RemoveUnallowedAndRebuild saves the RemoveUnallowedModules scenario and
// starts a module-state rebuild for it.
func (s *Service) RemoveUnallowedAndRebuild(ctx context.Context) (ir.RebuildState, error) {
	if err := s.checkMutable("remove unallowed modules"); err != nil {
		return ir.RebuildState{}, err
	}
	if err := s.ensureIdle(ctx); err != nil {
		return ir.RebuildState{}, fmt.Errorf("remove unallowed modules: %w", err)
	}
	sc, err := s.RemoveUnallowedModules(ctx)
	if err != nil {
		return ir.RebuildState{}, err
	}
	return s.start(ctx, sc, ir.ReasonModuleState)
}

// Legacy upgrade module values besides a target version.
const (
	LegacyRemove  = "remove"
	LegacyDisable = "disable"
)

// legacyCoreID is how the previous upgrader names the core module.
const legacyCoreID = "Core"

// LegacyUpgrade finishes an upgrade the previous upgrader already
// deployed. modules maps a module id to its new version, or to
// LegacyRemove or LegacyDisable. The deployment steps are skipped, the
// bookkeeping steps run, and the rebuild cannot be rolled back.
func (s *Service) LegacyUpgrade(ctx context.Context, modules map[string]string) (ir.RebuildState, error) {
	if err := s.checkMutable("legacy upgrade"); err != nil {
		return ir.RebuildState{}, err
	}

	units := make([]ir.ChangeUnit, 0, len(modules))
	for _, raw := range sortedKeys(modules) {
		id := ir.ModuleID(strings.ReplaceAll(raw, "\\", "-"))
		if raw == legacyCoreID {
			id = "CDev-Core"
		}
		switch v := modules[raw]; v {
		case LegacyRemove:
			units = append(units, ir.ChangeUnit{ID: id, Remove: true})
		case LegacyDisable:
			units = append(units, ir.ChangeUnit{ID: id, Disable: true})
		default:
			units = append(units, ir.ChangeUnit{ID: id, Upgrade: true, Version: v})
		}
	}

	sc := s.newScenario(ir.ScenarioUpgrade, "")
	sc.CanRollback = false
	sc, err := s.process(ctx, sc, units)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("legacy upgrade: %w", err)
	}

	if err := s.preempt(ctx, "legacy upgrade"); err != nil {
		return ir.RebuildState{}, fmt.Errorf("legacy upgrade: %w", err)
	}

	st, err := s.resolver.StartRebuild(ctx, sc.ID, ir.ReasonUpgrade)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("legacy upgrade: %w", err)
	}
	st, err = s.executor.FastForward(ctx, st.ID, engine.StepUpdateModulesList, engine.StepUpdateScriptState)
	if err != nil {
		return st, fmt.Errorf("legacy upgrade: %w", err)
	}
	s.logger.Info("legacy upgrade fast-forwarded", "rebuild", st.ID, "step", st.Step.ID)
	return s.executor.Run(ctx, st.ID)
}

// LockStatus reports the current rebuild lease.
func (s *Service) LockStatus(ctx context.Context) (store.Lease, bool, error) {
	return s.lock.Status(ctx)
}

// ClearRebuildLock removes the rebuild lease whoever holds it. The evicted
// lease is returned when there was one.
func (s *Service) ClearRebuildLock(ctx context.Context) (store.Lease, bool, error) {
	if err := s.checkMutable("clear rebuild lock"); err != nil {
		return store.Lease{}, false, err
	}
	return s.lock.ClearAnySetRebuildFlags(ctx)
}

// ensureIdle fails with engine.ErrRebuildActive while a rebuild runs, so a
// flow refuses before it saves a scenario it could not start.
func (s *Service) ensureIdle(ctx context.Context) error {
	active, ok, err := s.store.ActiveRebuild(ctx)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w (rebuild %s, scenario %s)", engine.ErrRebuildActive, active.ID, active.ScenarioID)
	}
	return nil
}

// start starts a rebuild of a scenario the flow just saved. A refused
// start removes the scenario again.
func (s *Service) start(ctx context.Context, sc *ir.Scenario, reason ir.RebuildReason) (ir.RebuildState, error) {
	st, err := s.resolver.StartRebuild(ctx, sc.ID, reason)
	if err == nil {
		return st, nil
	}
	if rmErr := s.store.RemoveScenario(ctx, sc.ID); rmErr != nil {
		s.logger.Error("remove scenario of refused rebuild", "scenario", sc.ID, "error", rmErr)
	}
	return ir.RebuildState{}, err
}

// preempt clears the lock and fails whatever rebuild is still marked
// running, so a flow that must start from scratch can.
func (s *Service) preempt(ctx context.Context, flow string) error {
	if _, _, err := s.lock.ClearAnySetRebuildFlags(ctx); err != nil {
		return err
	}
	active, ok, err := s.store.ActiveRebuild(ctx)
	if err != nil || !ok {
		return err
	}

	failed := active.Clone()
	failed.Status = ir.StatusFailed
	failed.Error = "preempted by " + flow
	failed.Seq++
	failed.UpdatedAt = s.clock.Now()
	if err := s.store.SaveRebuild(ctx, failed); err != nil {
		return err
	}
	s.logger.Warn("running rebuild preempted", "rebuild", active.ID, "scenario", active.ScenarioID, "flow", flow)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
