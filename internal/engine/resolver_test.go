package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

func TestPlanFor(t *testing.T) {
	tests := []struct {
		reason ir.RebuildReason
		want   []string
	}{
		{ir.ReasonRedeploy, []string{StepApplyChanges, StepUpdateModulesList, StepUpdateScriptState}},
		{ir.ReasonInstall, []string{StepDownloadPacks, StepUnpackPacks, StepApplyChanges, StepUpdateModulesList, StepUpdateScriptState}},
		{ir.ReasonUpgrade, []string{StepDownloadPacks, StepUnpackPacks, StepApplyChanges, StepUpdateModulesList, StepRunHooks, StepUpdateScriptState}},
		{ir.ReasonModuleState, []string{StepDownloadPacks, StepUnpackPacks, StepApplyChanges, StepUpdateModulesList, StepRunHooks, StepUpdateScriptState}},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			got, err := PlanFor(tt.reason)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PlanFor("rollback")
	assert.Error(t, err)
}

func TestDefaultSteps_CoverEveryPlan(t *testing.T) {
	steps := DefaultSteps()
	for _, reason := range []ir.RebuildReason{ir.ReasonRedeploy, ir.ReasonInstall, ir.ReasonUpgrade, ir.ReasonModuleState} {
		plan, err := PlanFor(reason)
		require.NoError(t, err)
		for _, id := range plan {
			assert.Contains(t, steps, id, "reason %s", reason)
		}
	}
}

func TestStartRebuild(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	st, err := r.resolver.StartRebuild(ctx, "sc-1", ir.ReasonUpgrade)
	require.NoError(t, err)

	assert.Equal(t, "rb-1", st.ID)
	assert.Equal(t, "sc-1", st.ScenarioID)
	assert.Equal(t, ir.StatusRunning, st.Status)
	assert.Equal(t, StepDownloadPacks, st.Step.ID)
	assert.Equal(t, 0, st.Step.Index)
	assert.Equal(t, "tok-1", st.LockToken)
	assert.True(t, st.CanRollback)
	assert.Equal(t, r.clock.Now(), st.CreatedAt)

	persisted, err := r.store.FindRebuild(ctx, "rb-1")
	require.NoError(t, err)
	assert.Equal(t, st.Plan, persisted.Plan)

	lease, held, err := r.lock.Status(ctx)
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "rb-1", lease.Holder)
	assert.Equal(t, "tok-1", lease.Token)
}

func TestStartRebuild_OnlyOneRunning(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.resolver.StartRebuild(ctx, "sc-1", ir.ReasonRedeploy)
	require.NoError(t, err)

	_, err = r.resolver.StartRebuild(ctx, "sc-1", ir.ReasonRedeploy)
	assert.ErrorIs(t, err, ErrRebuildActive)
}

func TestStartRebuild_LockHeldElsewhere(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.lock.Acquire(ctx, "another-process")
	require.NoError(t, err)

	_, err = r.resolver.StartRebuild(ctx, "sc-1", ir.ReasonRedeploy)
	require.Error(t, err)
	assert.True(t, IsLockHeldError(err))

	_, ok, err := r.store.ActiveRebuild(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no rebuild state should be saved without the lock")
}

func TestStartRebuild_Errors(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.resolver.StartRebuild(ctx, "missing", ir.ReasonRedeploy)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = r.resolver.StartRebuild(ctx, "sc-1", "bogus")
	assert.Error(t, err)

	_, held, err := r.lock.Status(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}
