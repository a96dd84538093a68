package compiler

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Module errors (E101-E109)
	ErrInvalidModuleID   = "E101" // id is not Author-Name
	ErrInvalidModuleType = "E102" // unknown module type
	ErrInvalidVersion    = "E103" // release version is not a dotted version
	ErrIdentityMismatch  = "E104" // author/name/type differ between releases
	ErrSelfReference     = "E105" // module requires or excludes itself

	// Reference errors (E110-E119)
	ErrUnknownDependency = "E110" // requires a module the catalog lacks
	ErrUnsatisfiable     = "E111" // no release meets the minimum version
	ErrUnknownIncompat   = "E112" // incompatible with a module the catalog lacks
	ErrConflictingRefs   = "E113" // module both requires and excludes another

	// Edition errors (E120-E129)
	ErrUnknownEditionModule = "E120" // edition lists a module the catalog lacks
	ErrEditionModuleType    = "E121" // edition lists a core or service module
	ErrEmptyEdition         = "E122" // edition has no modules
)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// moduleIDPattern matches "Author-Name" with identifier-like halves.
var moduleIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*-[A-Za-z][A-Za-z0-9]*$`)

// ValidateCatalog checks every release and edition of a compiled catalog.
// Returns all errors found (does not fail-fast), in a stable order.
func ValidateCatalog(modules []ir.Module, editions catalog.Editions) []ValidationError {
	var errs []ValidationError

	byID := make(map[ir.ModuleID][]ir.Module)
	var ids []ir.ModuleID
	for _, m := range modules {
		if _, seen := byID[m.ID]; !seen {
			ids = append(ids, m.ID)
		}
		byID[m.ID] = append(byID[m.ID], m)
	}
	slices.Sort(ids)

	for _, id := range ids {
		releases := byID[id]
		if !moduleIDPattern.MatchString(string(id)) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("module.%s", id),
				Message: fmt.Sprintf("module id %q must be Author-Name", id),
				Code:    ErrInvalidModuleID,
			})
		}
		first := releases[0]
		if !first.Type.Valid() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("module.%s.type", id),
				Message: fmt.Sprintf("invalid module type %q, must be core, plugin, skin or service", first.Type),
				Code:    ErrInvalidModuleType,
			})
		}
		for _, m := range releases {
			errs = append(errs, validateRelease(m, first, byID)...)
		}
	}

	for _, name := range editions.Names() {
		errs = append(errs, validateEdition(editions[name], byID)...)
	}
	return errs
}

func validateRelease(m, first ir.Module, byID map[ir.ModuleID][]ir.Module) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("module.%s.release.%s", m.ID, m.Version)

	if !ir.ValidVersion(m.Version) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid version %q", m.Version),
			Code:    ErrInvalidVersion,
		})
	}
	if m.Author != first.Author || m.Name != first.Name || m.Type != first.Type {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "author, name and type must match across releases",
			Code:    ErrIdentityMismatch,
		})
	}

	for _, dep := range m.Dependencies {
		depField := fmt.Sprintf("%s.requires.%s", field, dep.ID)
		if dep.ID == m.ID {
			errs = append(errs, ValidationError{Field: depField, Message: "module requires itself", Code: ErrSelfReference})
			continue
		}
		if m.IncompatibleWith(dep.ID) {
			errs = append(errs, ValidationError{
				Field:   depField,
				Message: fmt.Sprintf("%s is both required and incompatible", dep.ID),
				Code:    ErrConflictingRefs,
			})
		}
		releases, ok := byID[dep.ID]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   depField,
				Message: fmt.Sprintf("unknown module %s", dep.ID),
				Code:    ErrUnknownDependency,
			})
			continue
		}
		if dep.MinVersion != "" && !slices.ContainsFunc(releases, func(r ir.Module) bool {
			return dep.SatisfiedBy(r.Version)
		}) {
			errs = append(errs, ValidationError{
				Field:   depField,
				Message: fmt.Sprintf("no release of %s is at least %s", dep.ID, dep.MinVersion),
				Code:    ErrUnsatisfiable,
			})
		}
	}

	for _, other := range m.Incompatible {
		incField := fmt.Sprintf("%s.incompatible.%s", field, other)
		if other == m.ID {
			errs = append(errs, ValidationError{Field: incField, Message: "module is incompatible with itself", Code: ErrSelfReference})
			continue
		}
		if _, ok := byID[other]; !ok {
			errs = append(errs, ValidationError{
				Field:   incField,
				Message: fmt.Sprintf("unknown module %s", other),
				Code:    ErrUnknownIncompat,
			})
		}
	}
	return errs
}

func validateEdition(ed catalog.Edition, byID map[ir.ModuleID][]ir.Module) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("edition.%s", ed.Name)

	if len(ed.Modules) == 0 {
		errs = append(errs, ValidationError{Field: field, Message: "edition has no modules", Code: ErrEmptyEdition})
	}
	for _, id := range ed.Modules {
		releases, ok := byID[id]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".modules",
				Message: fmt.Sprintf("unknown module %s", id),
				Code:    ErrUnknownEditionModule,
			})
			continue
		}
		switch t := releases[0].Type; t {
		case ir.ModuleTypeCore, ir.ModuleTypeService:
			errs = append(errs, ValidationError{
				Field:   field + ".modules",
				Message: fmt.Sprintf("%s is a %s module; editions list plugins and skins", id, t),
				Code:    ErrEditionModuleType,
			})
		}
	}
	return errs
}
