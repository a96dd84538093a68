package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/storebus/internal/ir"
)

// Snapshot renders the parts of a result that golden files pin down: the
// transitions after every step, the rebuild outcome and the final installed
// set. Timestamps and log output are left out.
func Snapshot(name string, result *Result) ir.IRObject {
	steps := make(ir.IRArray, len(result.Steps))
	for i, s := range result.Steps {
		obj := ir.IRObject{"step": ir.IRInt(s.Step)}
		if s.Error != "" {
			obj["error"] = ir.IRString(s.Error)
		} else {
			ts := make(ir.IRArray, len(s.Transitions))
			for j, t := range s.Transitions {
				ts[j] = t.Object()
			}
			obj["transitions"] = ts
		}
		steps[i] = obj
	}

	installed := make(ir.IRArray, len(result.Installed))
	for i, m := range result.Installed {
		installed[i] = ir.IRObject{
			"id":      ir.IRString(m.ID),
			"version": ir.IRString(m.Version),
			"enabled": ir.IRBool(m.Enabled),
		}
	}

	snap := ir.IRObject{
		"fixture":   ir.IRString(name),
		"steps":     steps,
		"installed": installed,
	}
	if r := result.Rebuild; r != nil {
		calls := make(ir.IRArray, len(r.Calls))
		for i, c := range r.Calls {
			calls[i] = ir.IRString(c)
		}
		rb := ir.IRObject{"status": ir.IRString(r.Status), "calls": calls}
		if r.Error != "" {
			rb["error"] = ir.IRString(r.Error)
		}
		snap["rebuild"] = rb
	}
	return snap
}

// RunWithGolden executes a fixture and compares its snapshot against
// testdata/golden/<fixture name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The returned result lets callers check Pass and Errors as well.
func RunWithGolden(t *testing.T, f *Fixture) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), f)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, f.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the fixture.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(name, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
