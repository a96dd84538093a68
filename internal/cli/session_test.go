package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/engine"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
	"github.com/roach88/storebus/internal/service"
	"github.com/roach88/storebus/internal/store"
)

func TestParseChangeUnit(t *testing.T) {
	tests := []struct {
		raw     string
		want    ir.ChangeUnit
		wantErr string
	}{
		{raw: "install:XC-Wishlist@2.0", want: ir.ChangeUnit{ID: "XC-Wishlist", Install: true, Version: "2.0"}},
		{raw: "install-disabled:XC-Wishlist@2.0", want: ir.ChangeUnit{ID: "XC-Wishlist", Install: true, Inactive: true, Version: "2.0"}},
		{raw: "enable:XC-A", want: ir.ChangeUnit{ID: "XC-A", Enable: true}},
		{raw: "disable:XC-A", want: ir.ChangeUnit{ID: "XC-A", Disable: true}},
		{raw: "upgrade:CDev-Core@5.4.1", want: ir.ChangeUnit{ID: "CDev-Core", Upgrade: true, Version: "5.4.1"}},
		{raw: "remove:XC-A", want: ir.ChangeUnit{ID: "XC-A", Remove: true}},
		{raw: "XC-A", wantErr: "want action:Module-ID"},
		{raw: "remove:", wantErr: "want action:Module-ID"},
		{raw: "purge:XC-A", wantErr: `unknown action "purge"`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseChangeUnit(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"rule", fmt.Errorf("change: %w", &scenario.RuleError{Code: scenario.CodeDependentsBlock, Module: "XC-A"}), ErrCodeRuleViolation, ExitFailure},
		{"construction", &ir.ConstructionError{ModuleID: "XC-A", Message: "version is required"}, ErrCodeInvalidRequest, ExitCommandError},
		{"invalid request", fmt.Errorf("install: %w: bad", service.ErrInvalidRequest), ErrCodeInvalidRequest, ExitCommandError},
		{"not found", fmt.Errorf("find: %w", store.ErrNotFound), ErrCodeNotFound, ExitCommandError},
		{"fixpoint", &scenario.FixpointError{Passes: 64}, ErrCodeNoFixpoint, ExitFailure},
		{"lock held", &engine.LockHeldError{Key: "rebuild", Holder: "rb-1"}, ErrCodeLockHeld, ExitFailure},
		{"rebuild active", fmt.Errorf("start: %w", engine.ErrRebuildActive), ErrCodeRebuildActive, ExitFailure},
		{"step", &engine.StepError{Step: engine.StepApplyChanges, Err: fmt.Errorf("x: %w", store.ErrNotFound)}, ErrCodeStepFailed, ExitFailure},
		{"demo", service.ErrDemoMode, ErrCodeDemoMode, ExitFailure},
		{"in use", service.ErrScenarioInUse, ErrCodeScenarioInUse, ExitFailure},
		{"no active", service.ErrNoActiveRebuild, ErrCodeNoActiveRebuild, ExitFailure},
		{"finished", engine.ErrRebuildFinished, ErrCodeRebuildFinished, ExitFailure},
		{"lease lost", engine.ErrLeaseLost, ErrCodeLeaseLost, ExitFailure},
		{"drift", scenario.ErrScenarioDrift, ErrCodeScenarioDrift, ExitFailure},
		{"other", errors.New("boom"), ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit, _ := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestClassifyDetails(t *testing.T) {
	_, _, details := classify(&scenario.RuleError{Code: scenario.CodeUnlicensed, Module: "XC-Stripe"})
	assert.Equal(t, map[string]string{"rule": "unlicensed", "module": "XC-Stripe"}, details)

	_, _, details = classify(&engine.StepError{Step: engine.StepRunHooks, Module: "XC-A", Fatal: true, Err: errors.New("x")})
	assert.Equal(t, map[string]any{"step": engine.StepRunHooks, "module": "XC-A", "fatal": true}, details)
}
