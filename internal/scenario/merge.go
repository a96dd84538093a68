package scenario

import (
	"github.com/roach88/storebus/internal/ir"
)

// merge combines the current transition for a module with a rule proposal.
// It returns the transition to keep and whether it changed in a way rules
// must look at again.
//
//   - Requests beat rules, except that a disabled install becomes an
//     enabled install when something enabled needs it.
//   - Between rules, the higher rank wins. Equal ranks with opposite
//     enabled states are a conflict.
//   - The same kind keeps the higher version.
//
// RequiredBy lists are always unioned.
func merge(cur, in ir.Transition) (ir.Transition, bool, error) {
	requiredBy := append(append([]ir.ModuleID(nil), cur.Info.RequiredBy...), in.Info.RequiredBy...)

	if cur.Kind == in.Kind {
		if versioned(cur.Kind) && ir.CompareVersions(in.Version, cur.Version) > 0 {
			if cur.Requested() {
				return ir.Transition{}, false, ruleErrorf(CodeDependencyConflict, cur.ModuleID,
					"%s %s was requested but %v need %s", cur.ModuleID, cur.Version, in.Info.RequiredBy, in.Version)
			}
			out := in
			out.Info.RequiredBy = nil
			return out.WithRequiredBy(requiredBy...), true, nil
		}
		return cur.WithRequiredBy(requiredBy...), false, nil
	}

	if cur.Kind == ir.KindInstallDisabled && in.Kind == ir.KindInstallEnabled {
		out := cur
		out.Kind = ir.KindInstallEnabled
		if ir.CompareVersions(in.Version, out.Version) > 0 && !cur.Requested() {
			out.Version = in.Version
		}
		return out.WithRequiredBy(requiredBy...), true, nil
	}
	if cur.Kind == ir.KindInstallEnabled && in.Kind == ir.KindInstallDisabled {
		return cur.WithRequiredBy(requiredBy...), false, nil
	}

	if opposed(cur.Kind, in.Kind) {
		return ir.Transition{}, false, ruleErrorf(CodeTransitionConflict, cur.ModuleID,
			"%s is scheduled to %s but %v need it to %s", cur.ModuleID, cur.Kind, in.Info.RequiredBy, in.Kind)
	}

	if cur.Requested() {
		return cur.WithRequiredBy(requiredBy...), false, nil
	}

	if in.Kind.Rank() > cur.Kind.Rank() {
		out := in
		out.Info.RequiredBy = nil
		return out.WithRequiredBy(requiredBy...), true, nil
	}
	return cur.WithRequiredBy(requiredBy...), false, nil
}

func versioned(k ir.TransitionKind) bool {
	return k.Installs() || k == ir.KindUpgrade
}

// opposed reports whether one kind keeps or makes the module usable while
// the other takes it away.
func opposed(a, b ir.TransitionKind) bool {
	return (a.Deactivates() && !b.Deactivates()) || (!a.Deactivates() && b.Deactivates())
}
