// Package harness runs module change fixtures against a real store and
// processor and checks the outcome.
//
// # Fixture Format
//
// Fixtures are YAML files:
//
//	name: remove-cascades
//	description: "Removing a module disables what depends on it"
//	policy: cascade
//	installed:
//	  - { id: XC-A, version: "1.0" }
//	  - { id: XC-C, version: "1.0", requires: { XC-A: "" } }
//	marketplace:
//	  - { id: XC-B, version: "2.0", type: skin, unlicensed: true }
//	steps:
//	  - units:
//	      - { id: XC-A, action: remove }
//	rebuild: module-state
//	assertions:
//	  - { type: transition, module: XC-C, kind: disable, origin: conflict }
//	  - type: final_state
//	    table: installed_modules
//	    where: { id: XC-C }
//	    expect: { enabled: false }
//
// Installed modules are also published to the marketplace, so a fixture
// only lists the releases the store does not run yet. A catalog entry
// names a CUE catalog directory, relative to the fixture, to load the
// marketplace from instead.
//
// Every step is applied to one scenario through the service layer. A step
// with expect_error must fail with that rule error code and leaves the
// scenario unchanged. When rebuild names a reason, the resulting scenario
// is rebuilt to completion with a recording artifacts collaborator.
//
// # Assertion Types
//
//   - transition: the final scenario holds a transition for module, with
//     the given kind, and optionally version and origin
//   - no_transition: the final scenario leaves module alone
//   - transition_count: the final scenario holds exactly count transitions
//   - final_state: one row of a store table matches where and carries the
//     expected column values
//
// # Golden Files
//
// RunWithGolden compares a canonical JSON snapshot of the run (per-step
// transitions, rebuild calls and the final installed set) against
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
package harness
