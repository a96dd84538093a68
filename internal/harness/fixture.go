package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
)

// Fixture is one harness case.
type Fixture struct {
	// Name identifies the fixture and names its golden file.
	Name string `yaml:"name"`

	// Description says what the fixture demonstrates.
	Description string `yaml:"description"`

	// Policy is the dependents policy, cascade when empty.
	Policy string `yaml:"policy,omitempty"`

	// Catalog is a CUE catalog directory loaded as the marketplace.
	// LoadFixture resolves it relative to the fixture file.
	Catalog string `yaml:"catalog,omitempty"`

	// Marketplace lists releases available beyond the installed ones.
	Marketplace []ModuleSpec `yaml:"marketplace,omitempty"`

	// Installed is the store's module set before the first step.
	Installed []ModuleSpec `yaml:"installed"`

	// Steps are change unit batches applied to one scenario in order.
	Steps []Step `yaml:"steps"`

	// Rebuild is the rebuild reason to run the final scenario with. Empty
	// means no rebuild.
	Rebuild string `yaml:"rebuild,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// ModuleSpec describes one module release.
type ModuleSpec struct {
	ID           string            `yaml:"id"`
	Version      string            `yaml:"version"`
	Type         string            `yaml:"type,omitempty"`
	Disabled     bool              `yaml:"disabled,omitempty"`
	Unlicensed   bool              `yaml:"unlicensed,omitempty"`
	Requires     map[string]string `yaml:"requires,omitempty"`
	Incompatible []string          `yaml:"incompatible,omitempty"`
}

// Module converts the entry into a module snapshot.
func (m ModuleSpec) Module(installed bool) ir.Module {
	id := ir.ModuleID(m.ID)
	author, name, _ := id.Split()
	typ := ir.ModuleType(m.Type)
	if typ == "" {
		typ = ir.ModuleTypePlugin
	}
	mod := ir.Module{
		ID:        id,
		Author:    author,
		Name:      name,
		Version:   m.Version,
		Type:      typ,
		Installed: installed,
		Enabled:   installed && !m.Disabled,
		Licensed:  !m.Unlicensed,
	}

	deps := make([]string, 0, len(m.Requires))
	for dep := range m.Requires {
		deps = append(deps, dep)
	}
	slices.Sort(deps)
	for _, dep := range deps {
		mod.Dependencies = append(mod.Dependencies, ir.Dependency{ID: ir.ModuleID(dep), MinVersion: m.Requires[dep]})
	}
	for _, other := range m.Incompatible {
		mod.Incompatible = append(mod.Incompatible, ir.ModuleID(other))
	}
	slices.Sort(mod.Incompatible)
	return mod
}

// Step is one ChangeModulesState call.
type Step struct {
	Units []UnitSpec `yaml:"units"`

	// ExpectError is the rule error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// UnitSpec is the YAML form of a change unit.
type UnitSpec struct {
	ID       string `yaml:"id"`
	Action   string `yaml:"action"`
	Version  string `yaml:"version,omitempty"`
	Inactive bool   `yaml:"inactive,omitempty"`
}

// ChangeUnit converts the entry into a change unit.
func (u UnitSpec) ChangeUnit() ir.ChangeUnit {
	cu := ir.ChangeUnit{ID: ir.ModuleID(u.ID), Version: u.Version, Inactive: u.Inactive}
	switch ir.ChangeAction(u.Action) {
	case ir.ActionInstall:
		cu.Install = true
	case ir.ActionEnable:
		cu.Enable = true
	case ir.ActionDisable:
		cu.Disable = true
	case ir.ActionUpgrade:
		cu.Upgrade = true
	case ir.ActionRemove:
		cu.Remove = true
	}
	return cu
}

// Assertion checks the final scenario or store.
type Assertion struct {
	Type string `yaml:"type"`

	// Module, Kind, Version and Origin are used by transition and
	// no_transition.
	Module  string `yaml:"module,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	Version string `yaml:"version,omitempty"`
	Origin  string `yaml:"origin,omitempty"`

	// Count is used by transition_count.
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect are used by final_state. Where must select
	// exactly one row; Expect is a subset match on its columns.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTransition      = "transition"
	AssertNoTransition    = "no_transition"
	AssertTransitionCount = "transition_count"
	AssertFinalState      = "final_state"
)

// LoadFixture reads and validates a fixture file. Unknown fields are
// rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f.Catalog != "" && !filepath.IsAbs(f.Catalog) {
		f.Catalog = filepath.Join(filepath.Dir(path), f.Catalog)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", path, err)
	}
	return &f, nil
}

// LoadFixtures loads every *.yaml fixture in dir, in file name order.
func LoadFixtures(dir string) ([]*Fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	fixtures := make([]*Fixture, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// Validate checks that required fields are present and well formed.
func (f *Fixture) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if f.Description == "" {
		return fmt.Errorf("description is required")
	}
	if f.Policy != "" {
		if _, err := scenario.ParseDependentsPolicy(f.Policy); err != nil {
			return err
		}
	}
	if f.Catalog != "" {
		if _, err := os.Stat(f.Catalog); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(f.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if f.Rebuild != "" && !ir.RebuildReason(f.Rebuild).Valid() {
		return fmt.Errorf("rebuild: unknown reason %q", f.Rebuild)
	}

	for i, m := range f.Installed {
		if err := validateModule(m); err != nil {
			return fmt.Errorf("installed[%d]: %w", i, err)
		}
	}
	for i, m := range f.Marketplace {
		if err := validateModule(m); err != nil {
			return fmt.Errorf("marketplace[%d]: %w", i, err)
		}
	}

	for i, step := range f.Steps {
		if len(step.Units) == 0 {
			return fmt.Errorf("steps[%d]: units list is required", i)
		}
		for j, u := range step.Units {
			if !validAction(u.Action) {
				return fmt.Errorf("steps[%d].units[%d]: unknown action %q", i, j, u.Action)
			}
		}
	}

	for i := range f.Assertions {
		if err := validateAssertion(i, &f.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateModule(m ModuleSpec) error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ir.ValidVersion(m.Version) {
		return fmt.Errorf("%s: malformed version %q", m.ID, m.Version)
	}
	if m.Type != "" && !ir.ModuleType(m.Type).Valid() {
		return fmt.Errorf("%s: unknown type %q", m.ID, m.Type)
	}
	return nil
}

func validAction(action string) bool {
	switch ir.ChangeAction(action) {
	case ir.ActionInstall, ir.ActionEnable, ir.ActionDisable, ir.ActionUpgrade, ir.ActionRemove:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTransition:
		if a.Module == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: module and kind are required for transition", index)
		}
		if !ir.TransitionKind(a.Kind).Valid() {
			return fmt.Errorf("assertions[%d]: unknown transition kind %q", index, a.Kind)
		}
	case AssertNoTransition:
		if a.Module == "" {
			return fmt.Errorf("assertions[%d]: module is required for no_transition", index)
		}
	case AssertTransitionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for transition_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
