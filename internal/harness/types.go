package harness

import (
	"github.com/roach88/storebus/internal/ir"
)

// StepOutcome records what one fixture step did to the scenario.
type StepOutcome struct {
	Step        int             `json:"step"`
	Transitions []ir.Transition `json:"transitions,omitempty"`
	// Error is the rule error code, or the error text for other failures.
	Error string `json:"error,omitempty"`
}

// RebuildOutcome records the rebuild run after the last step.
type RebuildOutcome struct {
	ID     string           `json:"id"`
	Status ir.RebuildStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	// Calls lists artifact calls as "op:module", sorted.
	Calls []string `json:"calls"`
}

// Result is the outcome of running a fixture.
type Result struct {
	// Pass is true when every step behaved as declared and every assertion
	// held.
	Pass bool `json:"pass"`

	Steps   []StepOutcome   `json:"steps"`
	Rebuild *RebuildOutcome `json:"rebuild,omitempty"`

	// Transitions is the final scenario's transition map.
	Transitions map[ir.ModuleID]ir.Transition `json:"transitions"`

	// Installed is the installed module set once the run finished.
	Installed []ir.Module `json:"installed"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Steps:       []StepOutcome{},
		Transitions: map[ir.ModuleID]ir.Transition{},
		Errors:      []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
