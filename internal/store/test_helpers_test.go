package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/storebus/internal/ir"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestScenario creates a scenario with one requested transition.
func createTestScenario(id string) *ir.Scenario {
	sc := ir.NewScenario(id, ir.ScenarioCommon, testNow)
	sc.ChangeUnits = []ir.ChangeUnit{{ID: "XC-Reviews", Enable: true}}
	sc.Transitions["XC-Reviews"] = ir.Transition{
		ModuleID: "XC-Reviews",
		Kind:     ir.KindEnable,
		Version:  "5.4.1",
		Info:     ir.TransitionInfo{ModuleName: "Reviews", Type: ir.ModuleTypePlugin, Origin: ir.OriginRequest},
	}
	return sc
}

// createTestRebuild creates a running rebuild state for a scenario.
func createTestRebuild(id, scenarioID string) ir.RebuildState {
	return ir.RebuildState{
		ID:           id,
		ScenarioID:   scenarioID,
		Reason:       ir.ReasonRedeploy,
		ScenarioType: ir.ScenarioCommon,
		Plan:         []string{"apply-changes", "update-modules-list", "update-script-state"},
		Step:         ir.StepState{ID: "apply-changes"},
		Status:       ir.StatusRunning,
		CanRollback:  true,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

// createTestModule creates an enabled, licensed plugin.
func createTestModule(id ir.ModuleID, version string) ir.Module {
	author, name, _ := id.Split()
	return ir.Module{
		ID:        id,
		Author:    author,
		Name:      name,
		Version:   version,
		Type:      ir.ModuleTypePlugin,
		Installed: true,
		Enabled:   true,
		Licensed:  true,
	}
}
