package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/storebus/internal/ir"
)

// CompileModule turns one CUE module entry into its releases, oldest first.
//
// The value is the module struct itself, labelled with the module id:
//
//	module: "XC-Reviews": {
//		module_name: "Product reviews"
//		type:        "plugin"
//		release: "1.1": {
//			requires: "CDev-Core": "5.4"
//			incompatible: ["XC-OldReviews"]
//		}
//	}
//
// author and name default to the halves of the id, type defaults to
// plugin and licensed to true.
func CompileModule(v cue.Value) ([]ir.Module, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, &CompileError{Field: "module", Message: "module entry has no id label", Pos: v.Pos()}
	}
	id := ir.ModuleID(unquote(labels[len(labels)-1].String()))

	base := ir.Module{ID: id, Type: ir.ModuleTypePlugin, Licensed: true}
	if author, name, err := id.Split(); err == nil {
		base.Author, base.Name = author, name
	}

	var err error
	if base.Author, err = optionalString(v, "author", base.Author); err != nil {
		return nil, err
	}
	if base.Name, err = optionalString(v, "name", base.Name); err != nil {
		return nil, err
	}
	if base.ModuleName, err = optionalString(v, "module_name", ""); err != nil {
		return nil, err
	}
	typ, err := optionalString(v, "type", string(base.Type))
	if err != nil {
		return nil, err
	}
	base.Type = ir.ModuleType(typ)

	if lv := v.LookupPath(cue.ParsePath("licensed")); lv.Exists() {
		licensed, err := lv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		base.Licensed = licensed
	}

	relVal := v.LookupPath(cue.ParsePath("release"))
	if !relVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("module.%s.release", id),
			Message: "at least one release is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var releases []ir.Module
	for iter.Next() {
		m := base.Clone()
		m.Version = iter.Selector().Unquoted()
		if err := parseRelease(iter.Value(), &m); err != nil {
			return nil, err
		}
		releases = append(releases, m)
	}
	if len(releases) == 0 {
		return nil, &CompileError{
			Field:   fmt.Sprintf("module.%s.release", id),
			Message: "at least one release is required",
			Pos:     relVal.Pos(),
		}
	}

	slices.SortStableFunc(releases, func(a, b ir.Module) int {
		return ir.CompareVersions(a.Version, b.Version)
	})
	return releases, nil
}

// parseRelease fills the per-release dependency lists.
func parseRelease(v cue.Value, m *ir.Module) error {
	reqVal := v.LookupPath(cue.ParsePath("requires"))
	if reqVal.Exists() {
		iter, err := reqVal.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			minVersion, err := iter.Value().String()
			if err != nil {
				return &CompileError{
					Field:   fmt.Sprintf("module.%s.release.%s.requires", m.ID, m.Version),
					Message: "minimum version must be a string (empty for any)",
					Pos:     iter.Value().Pos(),
				}
			}
			m.Dependencies = append(m.Dependencies, ir.Dependency{
				ID:         ir.ModuleID(iter.Selector().Unquoted()),
				MinVersion: minVersion,
			})
		}
		slices.SortFunc(m.Dependencies, func(a, b ir.Dependency) int {
			return compareIDs(a.ID, b.ID)
		})
	}

	incVal := v.LookupPath(cue.ParsePath("incompatible"))
	if incVal.Exists() {
		ids, err := stringList(incVal)
		if err != nil {
			return err
		}
		for _, id := range ids {
			m.Incompatible = append(m.Incompatible, ir.ModuleID(id))
		}
		slices.Sort(m.Incompatible)
	}
	return nil
}

func optionalString(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func compareIDs(a, b ir.ModuleID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// unquote strips the quotes CUE keeps on labels that are not identifiers,
// such as "XC-Reviews".
func unquote(label string) string {
	if len(label) >= 2 && label[0] == '"' && label[len(label)-1] == '"' {
		return label[1 : len(label)-1]
	}
	return label
}

// CompileError is a catalog compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
