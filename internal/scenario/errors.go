package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/storebus/internal/ir"
)

// RuleErrorCode categorizes why a scenario could not be built.
type RuleErrorCode string

const (
	// CodeUnknownModule: the module or requested version is not known.
	CodeUnknownModule RuleErrorCode = "unknown_module"

	// CodeUnresolvedDependency: no available release satisfies a dependency.
	CodeUnresolvedDependency RuleErrorCode = "unresolved_dependency"

	// CodeDependencyConflict: a dependency is scheduled to go away or
	// cannot reach the required state.
	CodeDependencyConflict RuleErrorCode = "dependency_conflict"

	// CodeDependentsBlock: removal or disable blocked by enabled dependents.
	CodeDependentsBlock RuleErrorCode = "dependents_block"

	// CodeIncompatible: a requested module conflicts with another one.
	CodeIncompatible RuleErrorCode = "incompatible"

	// CodeUnlicensed: an unlicensed module is required by another transition.
	CodeUnlicensed RuleErrorCode = "unlicensed"

	// CodeSkinConflict: more than one skin would end up enabled.
	CodeSkinConflict RuleErrorCode = "skin_conflict"

	// CodeTransitionConflict: two rules want opposite states for a module.
	CodeTransitionConflict RuleErrorCode = "transition_conflict"

	// CodeCoreModule: core modules cannot be disabled or removed.
	CodeCoreModule RuleErrorCode = "core_module"
)

// RuleError reports a request that no scenario can satisfy.
type RuleError struct {
	Code    RuleErrorCode
	Module  ir.ModuleID
	Message string
}

func (e *RuleError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (module=%s)", e.Code, e.Message, e.Module)
}

func ruleErrorf(code RuleErrorCode, id ir.ModuleID, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Module: id, Message: fmt.Sprintf(format, args...)}
}

// IsRuleError reports whether err is a RuleError. With codes given, the
// error must also carry one of them.
func IsRuleError(err error, codes ...RuleErrorCode) bool {
	var re *RuleError
	if !errors.As(err, &re) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// FixpointError is returned when the builder did not settle within its
// pass limit.
type FixpointError struct {
	Passes  int
	Pending []ir.ModuleID
}

func (e *FixpointError) Error() string {
	pending := make([]string, len(e.Pending))
	for i, id := range e.Pending {
		pending[i] = string(id)
	}
	return fmt.Sprintf("scenario did not settle after %d passes (pending: %s)", e.Passes, strings.Join(pending, ", "))
}

// IsFixpointError reports whether err is a FixpointError.
func IsFixpointError(err error) bool {
	var fe *FixpointError
	return errors.As(err, &fe)
}

// ErrScenarioDrift is returned by Verify when a stored scenario no longer
// matches what its change units produce.
var ErrScenarioDrift = errors.New("scenario drift")
