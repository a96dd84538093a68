package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/storebus/internal/ir"
)

// marshalBody converts a record to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled so module names and URLs
// are stored as written.
func marshalBody(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalScenario(sc *ir.Scenario) (string, error) {
	body, err := marshalBody(sc)
	if err != nil {
		return "", fmt.Errorf("marshal scenario: %w", err)
	}
	return body, nil
}

func unmarshalScenario(data string) (*ir.Scenario, error) {
	var sc ir.Scenario
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	if sc.Transitions == nil {
		sc.Transitions = map[ir.ModuleID]ir.Transition{}
	}
	if sc.ChangeUnits == nil {
		sc.ChangeUnits = []ir.ChangeUnit{}
	}
	return &sc, nil
}

func marshalRebuild(st ir.RebuildState) (string, error) {
	body, err := marshalBody(st)
	if err != nil {
		return "", fmt.Errorf("marshal rebuild state: %w", err)
	}
	return body, nil
}

func unmarshalRebuild(data string) (ir.RebuildState, error) {
	var st ir.RebuildState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return ir.RebuildState{}, fmt.Errorf("unmarshal rebuild state: %w", err)
	}
	return st, nil
}

// marshalDependencies stores nil as [] so the column is never NULL.
func marshalDependencies(deps []ir.Dependency) (string, error) {
	if len(deps) == 0 {
		return "[]", nil
	}
	body, err := marshalBody(deps)
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return body, nil
}

func unmarshalDependencies(data string) ([]ir.Dependency, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var deps []ir.Dependency
	if err := json.Unmarshal([]byte(data), &deps); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return deps, nil
}

func marshalIDs(ids []ir.ModuleID) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	body, err := marshalBody(ids)
	if err != nil {
		return "", fmt.Errorf("marshal module ids: %w", err)
	}
	return body, nil
}

func unmarshalIDs(data string) ([]ir.ModuleID, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []ir.ModuleID
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal module ids: %w", err)
	}
	return ids, nil
}
