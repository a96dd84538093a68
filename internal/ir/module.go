package ir

import (
	"fmt"
	"strings"
)

// ModuleID identifies a module as "Author-Name", e.g. "CDev-Core".
type ModuleID string

// NewModuleID joins an author and a module name.
func NewModuleID(author, name string) ModuleID {
	return ModuleID(author + "-" + name)
}

// Split returns the author and name halves of the id.
func (id ModuleID) Split() (author, name string, err error) {
	author, name, ok := strings.Cut(string(id), "-")
	if !ok || author == "" || name == "" {
		return "", "", fmt.Errorf("module id %q: want Author-Name", string(id))
	}
	return author, name, nil
}

// ModuleType classifies a module.
type ModuleType string

const (
	ModuleTypeCore    ModuleType = "core"
	ModuleTypePlugin  ModuleType = "plugin"
	ModuleTypeSkin    ModuleType = "skin"
	ModuleTypeService ModuleType = "service"
)

// Valid reports whether t is a known module type.
func (t ModuleType) Valid() bool {
	switch t {
	case ModuleTypeCore, ModuleTypePlugin, ModuleTypeSkin, ModuleTypeService:
		return true
	}
	return false
}

// Dependency is a hard requirement on another module, optionally with a
// minimum version.
type Dependency struct {
	ID         ModuleID `json:"id"`
	MinVersion string   `json:"min_version,omitempty"`
}

// SatisfiedBy reports whether version meets the minimum.
func (d Dependency) SatisfiedBy(version string) bool {
	return d.MinVersion == "" || CompareVersions(version, d.MinVersion) >= 0
}

// Module is a read-only snapshot of one module release as seen by a
// catalog source: either the installed copy or a marketplace release.
type Module struct {
	ID           ModuleID     `json:"id"`
	Author       string       `json:"author"`
	Name         string       `json:"name"`
	ModuleName   string       `json:"module_name,omitempty"`
	Version      string       `json:"version"`
	Type         ModuleType   `json:"type"`
	Installed    bool         `json:"installed"`
	Enabled      bool         `json:"enabled"`
	Licensed     bool         `json:"licensed"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Incompatible []ModuleID   `json:"incompatible,omitempty"`
}

// DependsOn reports whether m lists id as a hard dependency.
func (m Module) DependsOn(id ModuleID) bool {
	for _, d := range m.Dependencies {
		if d.ID == id {
			return true
		}
	}
	return false
}

// IncompatibleWith reports whether m declares id incompatible.
func (m Module) IncompatibleWith(id ModuleID) bool {
	for _, other := range m.Incompatible {
		if other == id {
			return true
		}
	}
	return false
}

// DisplayName returns the human readable name, falling back to the id.
func (m Module) DisplayName() string {
	if m.ModuleName != "" {
		return m.ModuleName
	}
	return string(m.ID)
}

// Clone returns a copy that shares no slices with m.
func (m Module) Clone() Module {
	m.Dependencies = append([]Dependency(nil), m.Dependencies...)
	m.Incompatible = append([]ModuleID(nil), m.Incompatible...)
	return m
}
