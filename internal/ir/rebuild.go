package ir

import (
	"time"
)

// RebuildReason tells the executor which step plan to follow.
type RebuildReason string

const (
	ReasonRedeploy    RebuildReason = "redeploy"
	ReasonUpgrade     RebuildReason = "upgrade"
	ReasonInstall     RebuildReason = "install"
	ReasonModuleState RebuildReason = "module-state"
)

// Valid reports whether r is a known rebuild reason.
func (r RebuildReason) Valid() bool {
	switch r {
	case ReasonRedeploy, ReasonUpgrade, ReasonInstall, ReasonModuleState:
		return true
	}
	return false
}

// RebuildStatus is the lifecycle state of a rebuild.
type RebuildStatus string

const (
	StatusRunning   RebuildStatus = "running"
	StatusFailed    RebuildStatus = "failed"
	StatusCompleted RebuildStatus = "completed"
)

// StepState is the executor cursor: which step is current and whatever
// progress that step has recorded so far.
type StepState struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	Data      IRObject `json:"data,omitempty"`
	Attempts  int      `json:"attempts,omitempty"`
	LastError string   `json:"last_error,omitempty"`
}

// RebuildState is the persisted progress of one rebuild run. Exactly one
// scenario backs it.
type RebuildState struct {
	ID           string        `json:"id"`
	ScenarioID   string        `json:"scenario_id"`
	Reason       RebuildReason `json:"reason"`
	ScenarioType ScenarioType  `json:"scenario_type"`
	// ScenarioFingerprint pins the transitions the rebuild was started
	// with. Empty for states written before it was recorded.
	ScenarioFingerprint string        `json:"scenario_fingerprint,omitempty"`
	Plan                []string      `json:"plan"`
	Step                StepState     `json:"step_state"`
	Status              RebuildStatus `json:"status"`
	CanRollback         bool          `json:"can_rollback"`
	LockToken           string        `json:"lock_token,omitempty"`
	Seq                 int64         `json:"seq"`
	Error               string        `json:"error,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Terminal reports whether the rebuild has finished, successfully or not.
func (s RebuildState) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Clone deep-copies the state.
func (s RebuildState) Clone() RebuildState {
	s.Plan = append([]string(nil), s.Plan...)
	s.Step.Data = s.Step.Data.Clone()
	return s
}
