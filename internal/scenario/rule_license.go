package scenario

import (
	"context"

	"github.com/roach88/storebus/internal/ir"
)

// LicenseRule keeps unlicensed modules from being installed, enabled or
// upgraded. A direct request is dropped quietly; a module pulled in as a
// dependency fails the scenario, since its parent cannot work without it.
// Disabling and removing are always allowed.
type LicenseRule struct {
	NoTransform
}

// Name implements Rule.
func (LicenseRule) Name() string { return "license" }

// ApplyFilter implements Rule.
func (LicenseRule) ApplyFilter(ctx context.Context, t ir.Transition, b *Builder) error {
	if t.Kind.Deactivates() {
		return nil
	}
	target, err := b.Env().target(ctx, t)
	if err != nil {
		return err
	}
	if target.Licensed {
		return nil
	}
	if t.Requested() {
		b.Veto(t.ModuleID, ruleErrorf(CodeUnlicensed, t.ModuleID, "%s is not licensed", t.ModuleID))
		return nil
	}
	return ruleErrorf(CodeUnlicensed, t.ModuleID, "%s is not licensed but %v depend on it", t.ModuleID, t.Info.RequiredBy)
}
