package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func validCatalog() []ir.Module {
	core := release("CDev-Core", "5.4")
	core.Type = ir.ModuleTypeCore
	reviews := release("XC-Reviews", "1.0")
	reviews.Dependencies = []ir.Dependency{{ID: "CDev-Core", MinVersion: "5.4"}}
	skin := release("XC-Fashion", "5.4")
	skin.Type = ir.ModuleTypeSkin
	return []ir.Module{core, reviews, skin}
}

func TestValidateCatalogValid(t *testing.T) {
	editions := catalog.Editions{
		"Business": {Name: "Business", Modules: []ir.ModuleID{"XC-Fashion", "XC-Reviews"}},
	}
	assert.Empty(t, ValidateCatalog(validCatalog(), editions))
}

func TestValidateCatalogModuleErrors(t *testing.T) {
	bad := release("Broken", "1.0")
	bad.Type = "widget"

	errs := ValidateCatalog([]ir.Module{bad}, nil)
	assert.Equal(t, []string{ErrInvalidModuleID, ErrInvalidModuleType}, codes(errs))
}

func TestValidateCatalogInvalidVersion(t *testing.T) {
	errs := ValidateCatalog([]ir.Module{release("XC-A", "1..0")}, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidVersion, errs[0].Code)
	assert.Equal(t, "module.XC-A.release.1..0", errs[0].Field)
}

func TestValidateCatalogIdentityMismatch(t *testing.T) {
	older := release("XC-A", "1.0")
	newer := release("XC-A", "2.0")
	newer.Type = ir.ModuleTypeSkin

	errs := ValidateCatalog([]ir.Module{older, newer}, nil)
	assert.Equal(t, []string{ErrIdentityMismatch}, codes(errs))
}

func TestValidateCatalogReferences(t *testing.T) {
	m := release("XC-A", "1.0", "XC-A", "XC-Missing")
	m.Dependencies = append(m.Dependencies, ir.Dependency{ID: "XC-B", MinVersion: "9.0"})
	m.Incompatible = []ir.ModuleID{"XC-A", "XC-Ghost"}

	errs := ValidateCatalog([]ir.Module{m, release("XC-B", "1.0")}, nil)
	assert.Equal(t, []string{
		ErrSelfReference,
		ErrUnknownDependency,
		ErrUnsatisfiable,
		ErrSelfReference,
		ErrUnknownIncompat,
	}, codes(errs))
}

func TestValidateCatalogConflictingRefs(t *testing.T) {
	m := release("XC-A", "1.0", "XC-B")
	m.Incompatible = []ir.ModuleID{"XC-B"}

	errs := ValidateCatalog([]ir.Module{m, release("XC-B", "1.0")}, nil)
	assert.Equal(t, []string{ErrConflictingRefs}, codes(errs))
}

func TestValidateCatalogEditions(t *testing.T) {
	editions := catalog.Editions{
		"Empty": {Name: "Empty"},
		"Wrong": {Name: "Wrong", Modules: []ir.ModuleID{"CDev-Core", "XC-Nope"}},
	}
	errs := ValidateCatalog(validCatalog(), editions)
	assert.Equal(t, []string{ErrEmptyEdition, ErrEditionModuleType, ErrUnknownEditionModule}, codes(errs))
	assert.Equal(t, "edition.Empty", errs[0].Field)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "module.X-Y", Message: "bad", Code: ErrInvalidVersion}
	assert.Equal(t, "[E103] module.X-Y: bad", err.Error())
}
