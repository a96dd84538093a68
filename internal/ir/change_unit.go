package ir

import (
	"encoding/json"
	"fmt"
)

// ChangeAction is the single action a ChangeUnit requests.
type ChangeAction string

const (
	ActionInstall ChangeAction = "install"
	ActionEnable  ChangeAction = "enable"
	ActionDisable ChangeAction = "disable"
	ActionUpgrade ChangeAction = "upgrade"
	ActionRemove  ChangeAction = "remove"
)

// ChangeUnit is one user-level request against one module.
//
// Exactly one action flag is set. Install and upgrade carry the target
// version. Inactive asks for a disabled install.
type ChangeUnit struct {
	ID       ModuleID `json:"id"`
	Install  bool     `json:"install,omitempty"`
	Enable   bool     `json:"enable,omitempty"`
	Disable  bool     `json:"disable,omitempty"`
	Upgrade  bool     `json:"upgrade,omitempty"`
	Remove   bool     `json:"remove,omitempty"`
	Version  string   `json:"version,omitempty"`
	Inactive bool     `json:"inactive,omitempty"`
}

// ConstructionError reports a malformed change unit.
type ConstructionError struct {
	ModuleID ModuleID
	Message  string
}

func (e *ConstructionError) Error() string {
	if e.ModuleID == "" {
		return "invalid change unit: " + e.Message
	}
	return fmt.Sprintf("invalid change unit for %s: %s", e.ModuleID, e.Message)
}

// Action returns the requested action, or "" when no flag is set.
// Callers should Validate first; with several flags set the first in
// install, enable, disable, upgrade, remove order is returned.
func (u ChangeUnit) Action() ChangeAction {
	switch {
	case u.Install:
		return ActionInstall
	case u.Enable:
		return ActionEnable
	case u.Disable:
		return ActionDisable
	case u.Upgrade:
		return ActionUpgrade
	case u.Remove:
		return ActionRemove
	}
	return ""
}

// Validate checks the change unit shape.
func (u ChangeUnit) Validate() error {
	if u.ID == "" {
		return &ConstructionError{Message: "missing module id"}
	}
	if _, _, err := u.ID.Split(); err != nil {
		return &ConstructionError{ModuleID: u.ID, Message: err.Error()}
	}

	flags := 0
	for _, set := range []bool{u.Install, u.Enable, u.Disable, u.Upgrade, u.Remove} {
		if set {
			flags++
		}
	}
	switch {
	case flags == 0:
		return &ConstructionError{ModuleID: u.ID, Message: "no action requested"}
	case flags > 1:
		return &ConstructionError{ModuleID: u.ID, Message: "more than one action requested"}
	}

	if (u.Install || u.Upgrade) && u.Version == "" {
		return &ConstructionError{ModuleID: u.ID, Message: fmt.Sprintf("%s requires a version", u.Action())}
	}
	if u.Version != "" && !ValidVersion(u.Version) {
		return &ConstructionError{ModuleID: u.ID, Message: fmt.Sprintf("malformed version %q", u.Version)}
	}
	if u.Inactive && !u.Install {
		return &ConstructionError{ModuleID: u.ID, Message: "inactive is only valid with install"}
	}
	return nil
}

// UnmarshalJSON accepts the legacy {"enable": false} form as a disable
// request.
func (u *ChangeUnit) UnmarshalJSON(data []byte) error {
	type plain ChangeUnit
	var aux struct {
		plain
		Enable *bool `json:"enable"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = ChangeUnit(aux.plain)
	if aux.Enable != nil {
		u.Enable = *aux.Enable
		if !*aux.Enable {
			u.Disable = true
		}
	}
	return nil
}
