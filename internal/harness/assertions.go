package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/queryir"
	"github.com/roach88/storebus/internal/querysql"
	"github.com/roach88/storebus/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type        string
	Expected    string
	Actual      string
	Transitions []ir.Transition // final scenario, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Transitions) > 0 {
		fmt.Fprintf(&buf, "\nTransitions:\n")
		for _, t := range e.Transitions {
			fmt.Fprintf(&buf, "  %s %s %s (%s)\n", t.ModuleID, t.Kind, t.Version, t.Info.Origin)
		}
	}
	return buf.String()
}

func sortedTransitions(m map[ir.ModuleID]ir.Transition) []ir.Transition {
	out := make([]ir.Transition, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	ir.SortTransitions(out)
	return out
}

// assertTransition checks that the final scenario holds the transition.
// Version and origin are only compared when the assertion sets them.
func assertTransition(transitions map[ir.ModuleID]ir.Transition, a Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:        AssertTransition,
			Expected:    describeTransition(a),
			Actual:      actual,
			Transitions: sortedTransitions(transitions),
		}
	}

	t, ok := transitions[ir.ModuleID(a.Module)]
	if !ok {
		return fail(fmt.Sprintf("no transition for %s", a.Module))
	}
	if string(t.Kind) != a.Kind {
		return fail(fmt.Sprintf("%s %s", a.Module, t.Kind))
	}
	if a.Version != "" && t.Version != a.Version {
		return fail(fmt.Sprintf("%s %s version %s", a.Module, t.Kind, t.Version))
	}
	if a.Origin != "" && string(t.Info.Origin) != a.Origin {
		return fail(fmt.Sprintf("%s %s origin %s", a.Module, t.Kind, t.Info.Origin))
	}
	return nil
}

func describeTransition(a Assertion) string {
	desc := a.Module + " " + a.Kind
	if a.Version != "" {
		desc += " version " + a.Version
	}
	if a.Origin != "" {
		desc += " origin " + a.Origin
	}
	return desc
}

// assertNoTransition checks that the final scenario leaves the module alone.
func assertNoTransition(transitions map[ir.ModuleID]ir.Transition, a Assertion) error {
	t, ok := transitions[ir.ModuleID(a.Module)]
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:        AssertNoTransition,
		Expected:    fmt.Sprintf("no transition for %s", a.Module),
		Actual:      fmt.Sprintf("%s %s", a.Module, t.Kind),
		Transitions: sortedTransitions(transitions),
	}
}

// assertTransitionCount checks the size of the final transition map.
func assertTransitionCount(transitions map[ir.ModuleID]ir.Transition, a Assertion) error {
	if len(transitions) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:        AssertTransitionCount,
		Expected:    fmt.Sprintf("%d transitions", a.Count),
		Actual:      fmt.Sprintf("%d transitions", len(transitions)),
		Transitions: sortedTransitions(transitions),
	}
}

// assertFinalState checks one row of a store table. The query is built as
// a queryir.Select and compiled by querysql, so table and column names are
// validated and values are always bound as parameters.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	keys := make([]string, 0, len(a.Where))
	for k := range a.Where {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		v, err := toIRValue(a.Where[k])
		if err != nil {
			return fmt.Errorf("final_state where %s: %w", k, err)
		}
		preds = append(preds, queryir.Equals{Field: k, Value: v})
	}
	q := queryir.Select{From: a.Table, Filter: queryir.And{Predicates: preds}, OrderBy: keys, Key: keys[0]}

	sqlText, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	rows, err := st.Query(ctx, sqlText, params...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	whereDesc := formatWhereClause(a.Where)
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	expectKeys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		expectKeys = append(expectKeys, k)
	}
	slices.Sort(expectKeys)
	for _, key := range expectKeys {
		want := a.Expect[key]
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// toIRValue converts a YAML scalar to a query value. SQLite stores booleans
// as integers, so bools become 0 or 1.
func toIRValue(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return ir.IRInt(1), nil
		}
		return ir.IRInt(0), nil
	case string, int, int64:
		return ir.FromGo(val)
	default:
		return nil, fmt.Errorf("unsupported value %v (type %T)", v, v)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with a scanned SQLite
// value, which comes back as int64, string or []byte.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && exp == got
	case int:
		got, ok := actual.(int64)
		return ok && int64(exp) == got
	case int64:
		got, ok := actual.(int64)
		return ok && exp == got
	case bool:
		if got, ok := actual.(bool); ok {
			return exp == got
		}
		got, ok := actual.(int64)
		return ok && exp == (got != 0)
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides store access for final_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates every assertion against the result and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTransition:
			err = assertTransition(result.Transitions, a)
		case AssertNoTransition:
			err = assertNoTransition(result.Transitions, a)
		case AssertTransitionCount:
			err = assertTransitionCount(result.Transitions, a)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
