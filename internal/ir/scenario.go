package ir

import (
	"time"
)

// ScenarioType selects the flavour of a scenario.
type ScenarioType string

const (
	ScenarioCommon  ScenarioType = "common"
	ScenarioUpgrade ScenarioType = "upgrade"
	ScenarioInstall ScenarioType = "install"
)

// Valid reports whether t is a known scenario type.
func (t ScenarioType) Valid() bool {
	switch t {
	case ScenarioCommon, ScenarioUpgrade, ScenarioInstall:
		return true
	}
	return false
}

// Scenario is a persisted, named plan of module transitions.
//
// UpdatedAt stays zero until the scenario has been through the change
// unit processor at least once.
type Scenario struct {
	ID            string                  `json:"id"`
	Date          time.Time               `json:"date"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Type          ScenarioType            `json:"type"`
	ChangeUnits   []ChangeUnit            `json:"change_units"`
	Transitions   map[ModuleID]Transition `json:"modules_transitions"`
	ReturnURL     string                  `json:"return_url,omitempty"`
	StoreMetadata IRObject                `json:"store_metadata,omitempty"`
	CanRollback   bool                    `json:"can_rollback"`
}

// NewScenario returns an empty scenario of the given type.
func NewScenario(id string, typ ScenarioType, now time.Time) *Scenario {
	if typ == "" {
		typ = ScenarioCommon
	}
	return &Scenario{
		ID:          id,
		Date:        now,
		Type:        typ,
		ChangeUnits: []ChangeUnit{},
		Transitions: map[ModuleID]Transition{},
		CanRollback: true,
	}
}

// Clone deep-copies the scenario.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	c := *s
	c.ChangeUnits = append([]ChangeUnit{}, s.ChangeUnits...)
	c.Transitions = make(map[ModuleID]Transition, len(s.Transitions))
	for id, t := range s.Transitions {
		c.Transitions[id] = t.Clone()
	}
	c.StoreMetadata = s.StoreMetadata.Clone()
	return &c
}

// SortedTransitions returns the transitions ordered by module id.
func (s *Scenario) SortedTransitions() []Transition {
	out := make([]Transition, 0, len(s.Transitions))
	for _, t := range s.Transitions {
		out = append(out, t)
	}
	SortTransitions(out)
	return out
}

// RequestedTransitions returns only the transitions that came from change
// units, ordered by module id.
func (s *Scenario) RequestedTransitions() []Transition {
	var out []Transition
	for _, t := range s.SortedTransitions() {
		if t.Requested() {
			out = append(out, t)
		}
	}
	return out
}

// Processed reports whether the scenario went through the processor.
func (s *Scenario) Processed() bool {
	return !s.UpdatedAt.IsZero()
}
