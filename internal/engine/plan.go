package engine

import (
	"fmt"

	"github.com/roach88/storebus/internal/ir"
)

// Step ids.
const (
	StepDownloadPacks     = "download-packs"
	StepUnpackPacks       = "unpack-packs"
	StepApplyChanges      = "apply-changes"
	StepUpdateModulesList = "update-modules-list"
	StepRunHooks          = "run-hooks"
	StepUpdateScriptState = "update-script-state"
)

// PlanFor returns the ordered step ids a rebuild runs for reason.
func PlanFor(reason ir.RebuildReason) ([]string, error) {
	switch reason {
	case ir.ReasonRedeploy:
		return []string{
			StepApplyChanges,
			StepUpdateModulesList,
			StepUpdateScriptState,
		}, nil
	case ir.ReasonInstall:
		return []string{
			StepDownloadPacks,
			StepUnpackPacks,
			StepApplyChanges,
			StepUpdateModulesList,
			StepUpdateScriptState,
		}, nil
	case ir.ReasonUpgrade, ir.ReasonModuleState:
		return []string{
			StepDownloadPacks,
			StepUnpackPacks,
			StepApplyChanges,
			StepUpdateModulesList,
			StepRunHooks,
			StepUpdateScriptState,
		}, nil
	default:
		return nil, fmt.Errorf("unknown rebuild reason %q", reason)
	}
}
