package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/ir"
)

func TestFixtures(t *testing.T) {
	fixtures, err := LoadFixtures(filepath.Join("testdata", "fixtures"))
	require.NoError(t, err)
	require.NotEmpty(t, fixtures)

	for _, f := range fixtures {
		t.Run(f.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, f)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

// removal is the fixture every negative test starts from.
func removal(policy string) *Fixture {
	return &Fixture{
		Name:        "removal",
		Description: "remove a module with a dependent",
		Policy:      policy,
		Installed: []ModuleSpec{
			{ID: "CDev-Core", Version: "5.4", Type: "core"},
			{ID: "XC-A", Version: "1.0"},
			{ID: "XC-C", Version: "1.0", Requires: map[string]string{"XC-A": ""}},
		},
		Steps: []Step{
			{Units: []UnitSpec{{ID: "XC-A", Action: "remove"}}},
		},
		Assertions: []Assertion{
			{Type: AssertTransition, Module: "XC-A", Kind: "remove"},
		},
	}
}

func TestRunCascade(t *testing.T) {
	result, err := Run(context.Background(), removal("cascade"))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Steps, 1)
	assert.Empty(t, result.Steps[0].Error)
	assert.Equal(t, map[ir.ModuleID]ir.TransitionKind{
		"XC-A": ir.KindRemove,
		"XC-C": ir.KindDisable,
	}, kinds(result.Transitions))
	assert.Nil(t, result.Rebuild)
	assert.Len(t, result.Installed, 3)
}

func TestRunUnexpectedStepError(t *testing.T) {
	result, err := Run(context.Background(), removal("veto"))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "dependents_block", result.Steps[0].Error)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "step 1: unexpected error")
	assert.Empty(t, result.Transitions)
}

func TestRunExpectedErrorNotRaised(t *testing.T) {
	f := removal("cascade")
	f.Steps[0].ExpectError = "dependents_block"

	result, err := Run(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error dependents_block")
}

func TestRunInvalidChangeUnit(t *testing.T) {
	f := removal("cascade")
	f.Steps = []Step{{Units: []UnitSpec{{ID: "XC-A", Action: "install"}}, ExpectError: "invalid_change_unit"}}
	f.Assertions = []Assertion{{Type: AssertTransitionCount, Count: 0}}

	result, err := Run(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunReportsAssertionFailures(t *testing.T) {
	f := removal("cascade")
	f.Assertions = []Assertion{
		{Type: AssertTransition, Module: "XC-C", Kind: "remove"},
		{Type: AssertNoTransition, Module: "XC-C"},
		{Type: AssertTransitionCount, Count: 5},
		{Type: AssertFinalState, Table: "installed_modules", Where: map[string]any{"id": "XC-C"}, Expect: map[string]any{"version": "9.9"}},
	}

	result, err := Run(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	for _, msg := range result.Errors {
		assert.Contains(t, msg, "Assertion failed")
	}
}

func TestRunRebuild(t *testing.T) {
	f := removal("cascade")
	f.Rebuild = string(ir.ReasonModuleState)

	result, err := Run(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, result.Rebuild)
	assert.Equal(t, ir.StatusCompleted, result.Rebuild.Status)
	assert.Equal(t, "removal-2", result.Rebuild.ID)
	assert.Equal(t, []string{"apply:XC-A", "apply:XC-C", "hooks:XC-C"}, result.Rebuild.Calls)

	ids := make([]ir.ModuleID, len(result.Installed))
	for i, m := range result.Installed {
		ids[i] = m.ID
	}
	assert.Equal(t, []ir.ModuleID{"CDev-Core", "XC-C"}, ids)
}

func TestRunIsDeterministic(t *testing.T) {
	f := removal("cascade")
	f.Rebuild = string(ir.ReasonModuleState)

	first, err := Run(context.Background(), f)
	require.NoError(t, err)
	second, err := Run(context.Background(), f)
	require.NoError(t, err)

	if diff := cmp.Diff(Snapshot(f.Name, first), Snapshot(f.Name, second)); diff != "" {
		t.Errorf("snapshots differ (-first +second):\n%s", diff)
	}
}

func TestRunBadCatalog(t *testing.T) {
	f := removal("cascade")
	f.Catalog = t.TempDir()

	_, err := Run(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func kinds(ts map[ir.ModuleID]ir.Transition) map[ir.ModuleID]ir.TransitionKind {
	out := make(map[ir.ModuleID]ir.TransitionKind, len(ts))
	for id, t := range ts {
		out[id] = t.Kind
	}
	return out
}
