package scenario

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/ir"
)

// bumpRule keeps proposing a newer upgrade of whatever it sees, so the
// builder never settles.
type bumpRule struct{ NoFilter }

func (bumpRule) Name() string { return "bump" }

func (bumpRule) ApplyTransform(_ context.Context, t ir.Transition, b *Builder) error {
	n, _ := strconv.Atoi(t.Version)
	next := ir.Transition{ModuleID: t.ModuleID, Kind: ir.KindUpgrade, Version: strconv.Itoa(n + 1), Info: ir.TransitionInfo{Origin: ir.OriginDependency}}
	return b.Propose(next)
}

func TestBuilderStopsAtPassLimit(t *testing.T) {
	b := NewBuilder(testEnv(nil), []Rule{bumpRule{}}, WithMaxPasses(5), WithBuilderLogger(quietLogger()))
	require.NoError(t, b.Propose(ir.Transition{ModuleID: "XC-A", Kind: ir.KindUpgrade, Version: "1", Info: ir.TransitionInfo{Origin: ir.OriginDependency}}))

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.True(t, IsFixpointError(err))

	var fe *FixpointError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 5, fe.Passes)
	assert.Equal(t, []ir.ModuleID{"XC-A"}, fe.Pending)
	assert.Contains(t, err.Error(), "did not settle after 5 passes")
}

func TestBuilderEmptyIsSettled(t *testing.T) {
	b := NewBuilder(testEnv([]ir.Module{core}), DefaultRules(PolicyCascade), WithBuilderLogger(quietLogger()))
	ts, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ts)
	assert.Equal(t, 0, b.Passes())
}

func TestBuilderVetoBlocksLaterProposals(t *testing.T) {
	b := NewBuilder(testEnv(nil), nil, WithBuilderLogger(quietLogger()))
	b.Seed(ir.Transition{ModuleID: "XC-Paid", Kind: ir.KindInstallEnabled, Version: "1.0"})
	b.Veto("XC-Paid", ruleErrorf(CodeUnlicensed, "XC-Paid", "XC-Paid is not licensed"))

	_, ok := b.Transition("XC-Paid")
	assert.False(t, ok)

	err := b.Propose(ir.Transition{ModuleID: "XC-Paid", Kind: ir.KindInstallEnabled, Version: "1.0",
		Info: ir.TransitionInfo{Origin: ir.OriginDependency, RequiredBy: []ir.ModuleID{"XC-A"}}})
	require.Error(t, err)
	assert.True(t, IsRuleError(err, CodeUnlicensed))

	// A fresh request lifts the veto.
	b.Seed(ir.Transition{ModuleID: "XC-Paid", Kind: ir.KindInstallEnabled, Version: "1.0"})
	_, ok = b.Transition("XC-Paid")
	assert.True(t, ok)
}

func TestBuilderSeedReplacesAndDrop(t *testing.T) {
	b := NewBuilder(testEnv(nil), nil)
	b.Seed(ir.Transition{ModuleID: "XC-A", Kind: ir.KindEnable})
	b.Seed(ir.Transition{ModuleID: "XC-A", Kind: ir.KindRemove})

	got, ok := b.Transition("XC-A")
	require.True(t, ok)
	assert.Equal(t, ir.KindRemove, got.Kind)
	assert.Equal(t, ir.OriginRequest, got.Info.Origin)

	b.Drop("XC-A")
	assert.Empty(t, b.Transitions())
	assert.Empty(t, b.unsettled())
}

func TestMerge(t *testing.T) {
	req := func(kind ir.TransitionKind, version string) ir.Transition {
		return ir.Transition{ModuleID: "XC-B", Kind: kind, Version: version, Info: ir.TransitionInfo{Origin: ir.OriginRequest}}
	}
	rule := func(kind ir.TransitionKind, version string, origin ir.Origin) ir.Transition {
		return ir.Transition{ModuleID: "XC-B", Kind: kind, Version: version, Info: ir.TransitionInfo{Origin: origin, RequiredBy: []ir.ModuleID{"XC-A"}}}
	}

	tests := []struct {
		name        string
		cur, in     ir.Transition
		wantKind    ir.TransitionKind
		wantVersion string
		wantOrigin  ir.Origin
		wantChanged bool
		wantErr     RuleErrorCode
	}{
		{"enable dominance over requested disabled install",
			req(ir.KindInstallDisabled, "2.0"), rule(ir.KindInstallEnabled, "2.0", ir.OriginDependency),
			ir.KindInstallEnabled, "2.0", ir.OriginRequest, true, ""},
		{"disabled install never downgrades enabled install",
			rule(ir.KindInstallEnabled, "2.0", ir.OriginDependency), rule(ir.KindInstallDisabled, "2.0", ir.OriginDependency),
			ir.KindInstallEnabled, "2.0", ir.OriginDependency, false, ""},
		{"same kind keeps higher version",
			rule(ir.KindUpgrade, "2.0", ir.OriginDependency), rule(ir.KindUpgrade, "2.1", ir.OriginDependency),
			ir.KindUpgrade, "2.1", ir.OriginDependency, true, ""},
		{"same kind lower version is ignored",
			rule(ir.KindUpgrade, "2.1", ir.OriginDependency), rule(ir.KindUpgrade, "2.0", ir.OriginDependency),
			ir.KindUpgrade, "2.1", ir.OriginDependency, false, ""},
		{"requested version below rule version",
			req(ir.KindUpgrade, "2.0"), rule(ir.KindUpgrade, "2.1", ir.OriginDependency),
			"", "", "", false, CodeDependencyConflict},
		{"request beats rule of other kind",
			req(ir.KindRemove, ""), rule(ir.KindDisable, "", ir.OriginConflict),
			ir.KindRemove, "", ir.OriginRequest, false, ""},
		{"rule enable vs rule disable",
			rule(ir.KindDisable, "", ir.OriginConflict), rule(ir.KindEnable, "", ir.OriginDependency),
			"", "", "", false, CodeTransitionConflict},
		{"request disable vs rule enable",
			req(ir.KindDisable, ""), rule(ir.KindEnable, "", ir.OriginDependency),
			"", "", "", false, CodeTransitionConflict},
		{"disable from two rules",
			rule(ir.KindDisable, "", ir.OriginConflict), rule(ir.KindDisable, "", ir.OriginSkin),
			ir.KindDisable, "", ir.OriginConflict, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := merge(tt.cur, tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsRuleError(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.wantOrigin, got.Info.Origin)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Contains(t, got.Info.RequiredBy, ir.ModuleID("XC-A"))
		})
	}
}

func TestParseDependentsPolicy(t *testing.T) {
	p, err := ParseDependentsPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyCascade, p)

	p, err = ParseDependentsPolicy("veto")
	require.NoError(t, err)
	assert.Equal(t, PolicyVeto, p)

	_, err = ParseDependentsPolicy("ignore")
	assert.Error(t, err)
}
