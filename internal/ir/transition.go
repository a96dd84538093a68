package ir

import (
	"slices"
)

// TransitionKind is the state change scheduled for one module.
type TransitionKind string

const (
	KindInstallEnabled  TransitionKind = "install_enabled"
	KindInstallDisabled TransitionKind = "install_disabled"
	KindEnable          TransitionKind = "enable"
	KindDisable         TransitionKind = "disable"
	KindUpgrade         TransitionKind = "upgrade"
	KindRemove          TransitionKind = "remove"
)

// Valid reports whether k is a known transition kind.
func (k TransitionKind) Valid() bool {
	switch k {
	case KindInstallEnabled, KindInstallDisabled, KindEnable, KindDisable, KindUpgrade, KindRemove:
		return true
	}
	return false
}

// Installs reports whether k brings a not-installed module in.
func (k TransitionKind) Installs() bool {
	return k == KindInstallEnabled || k == KindInstallDisabled
}

// Deactivates reports whether k leaves the module unusable (disabled or gone).
func (k TransitionKind) Deactivates() bool {
	return k == KindDisable || k == KindRemove
}

// Rank orders kinds for merging rule-derived transitions: a higher rank
// replaces a lower one.
func (k TransitionKind) Rank() int {
	switch k {
	case KindRemove:
		return 4
	case KindInstallEnabled:
		return 3
	case KindInstallDisabled:
		return 2
	default:
		return 1
	}
}

// EnabledAfter reports whether the module is enabled once k is applied.
// wasEnabled is the module's current state, used for kinds that keep it.
func (k TransitionKind) EnabledAfter(wasEnabled bool) bool {
	switch k {
	case KindInstallEnabled, KindEnable:
		return true
	case KindUpgrade:
		return wasEnabled
	}
	return false
}

// Origin records why a transition is in the scenario.
type Origin string

const (
	// OriginRequest marks a transition derived from a change unit.
	OriginRequest Origin = "request"
	// OriginDependency marks a transition needed by another module.
	OriginDependency Origin = "dependency"
	// OriginConflict marks a disable forced by a removal or incompatibility.
	OriginConflict Origin = "conflict"
	// OriginSkin marks a disable forced by another skin being enabled.
	OriginSkin Origin = "skin"
)

// TransitionInfo is the descriptive payload attached to a transition.
type TransitionInfo struct {
	ModuleName string     `json:"module_name,omitempty"`
	Type       ModuleType `json:"type,omitempty"`
	Origin     Origin     `json:"origin"`
	RequiredBy []ModuleID `json:"required_by,omitempty"`
}

// Transition is one scheduled module state change.
type Transition struct {
	ModuleID ModuleID       `json:"id"`
	Kind     TransitionKind `json:"transition"`
	Version  string         `json:"version,omitempty"`
	Info     TransitionInfo `json:"info"`
}

// Requested reports whether t came straight from a change unit.
func (t Transition) Requested() bool {
	return t.Info.Origin == OriginRequest
}

// WithRequiredBy returns t with id appended to Info.RequiredBy, keeping the
// list sorted and free of duplicates.
func (t Transition) WithRequiredBy(ids ...ModuleID) Transition {
	t = t.Clone()
	for _, id := range ids {
		if id != "" && !slices.Contains(t.Info.RequiredBy, id) {
			t.Info.RequiredBy = append(t.Info.RequiredBy, id)
		}
	}
	slices.Sort(t.Info.RequiredBy)
	return t
}

// Equal compares kind, version and origin. RequiredBy is ignored.
func (t Transition) Equal(o Transition) bool {
	return t.ModuleID == o.ModuleID && t.Kind == o.Kind && t.Version == o.Version && t.Info.Origin == o.Info.Origin
}

// Clone returns a copy that shares no slices with t.
func (t Transition) Clone() Transition {
	t.Info.RequiredBy = append([]ModuleID(nil), t.Info.RequiredBy...)
	return t
}

// FillInfo copies descriptive fields from m into the transition.
func (t Transition) FillInfo(m Module) Transition {
	t.Info.ModuleName = m.DisplayName()
	t.Info.Type = m.Type
	return t
}

// Object renders the transition as an IRObject for canonical encoding.
func (t Transition) Object() IRObject {
	obj := IRObject{
		"id":         IRString(t.ModuleID),
		"transition": IRString(t.Kind),
		"origin":     IRString(t.Info.Origin),
	}
	if t.Version != "" {
		obj["version"] = IRString(t.Version)
	}
	if len(t.Info.RequiredBy) > 0 {
		req := make(IRArray, len(t.Info.RequiredBy))
		for i, id := range t.Info.RequiredBy {
			req[i] = IRString(id)
		}
		obj["required_by"] = req
	}
	return obj
}

// SortTransitions orders transitions by module id.
func SortTransitions(ts []Transition) {
	slices.SortFunc(ts, func(a, b Transition) int {
		switch {
		case a.ModuleID < b.ModuleID:
			return -1
		case a.ModuleID > b.ModuleID:
			return 1
		}
		return 0
	})
}
