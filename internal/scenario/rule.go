package scenario

import (
	"context"
	"fmt"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// Rule inspects one transition at a time.
//
// ApplyTransform may propose further transitions through the builder.
// ApplyFilter may veto the transition or reject the whole scenario. Both
// must be deterministic and must not keep state between calls.
type Rule interface {
	Name() string
	ApplyTransform(ctx context.Context, t ir.Transition, b *Builder) error
	ApplyFilter(ctx context.Context, t ir.Transition, b *Builder) error
}

// Env is what rules read: the installed modules and the marketplace.
type Env struct {
	Installed   catalog.Source
	Marketplace catalog.Source
}

// installed returns the installed copy of id.
func (e Env) installed(ctx context.Context, id ir.ModuleID) (ir.Module, bool, error) {
	return catalog.Latest(ctx, e.Installed, id)
}

// target returns the metadata the module will have once t is applied:
// the marketplace release for installs and upgrades, the installed copy
// otherwise.
func (e Env) target(ctx context.Context, t ir.Transition) (ir.Module, error) {
	var (
		m   ir.Module
		ok  bool
		err error
	)
	if t.Kind.Installs() || t.Kind == ir.KindUpgrade {
		m, ok, err = catalog.Release(ctx, e.Marketplace, t.ModuleID, t.Version)
	} else {
		m, ok, err = e.installed(ctx, t.ModuleID)
	}
	if err != nil {
		return ir.Module{}, err
	}
	if !ok {
		return ir.Module{}, ruleErrorf(CodeUnknownModule, t.ModuleID, "no metadata for %s %s", t.ModuleID, t.Version)
	}
	return m, nil
}

// enabledAfter reports whether id is enabled once the current transitions
// are applied.
func (e Env) enabledAfter(ctx context.Context, b *Builder, id ir.ModuleID) (bool, error) {
	inst, ok, err := e.installed(ctx, id)
	if err != nil {
		return false, err
	}
	wasEnabled := ok && inst.Enabled
	if t, has := b.Transition(id); has {
		return t.Kind.EnabledAfter(wasEnabled), nil
	}
	return wasEnabled, nil
}

// NoFilter can be embedded by rules that only transform.
type NoFilter struct{}

// ApplyFilter implements Rule.
func (NoFilter) ApplyFilter(context.Context, ir.Transition, *Builder) error { return nil }

// NoTransform can be embedded by rules that only filter.
type NoTransform struct{}

// ApplyTransform implements Rule.
func (NoTransform) ApplyTransform(context.Context, ir.Transition, *Builder) error { return nil }

// DependentsPolicy decides what happens to enabled modules that depend on
// a module being removed or disabled.
type DependentsPolicy string

const (
	// PolicyCascade disables the dependents.
	PolicyCascade DependentsPolicy = "cascade"
	// PolicyVeto rejects the scenario.
	PolicyVeto DependentsPolicy = "veto"
)

// ParseDependentsPolicy validates a policy name. Empty means cascade.
func ParseDependentsPolicy(s string) (DependentsPolicy, error) {
	switch DependentsPolicy(s) {
	case "", PolicyCascade:
		return PolicyCascade, nil
	case PolicyVeto:
		return PolicyVeto, nil
	}
	return "", fmt.Errorf("unknown dependents policy %q (want cascade or veto)", s)
}

// DefaultRules returns the standard rule set in evaluation order.
func DefaultRules(policy DependentsPolicy) []Rule {
	return []Rule{
		LicenseRule{},
		DependencyRule{},
		DependentsRule{Policy: policy},
		IncompatibleRule{},
		SkinRule{},
	}
}
