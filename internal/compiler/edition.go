package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// CompileEdition parses an edition entry:
//
//	edition: Business: modules: ["XC-Reviews", "XC-Wishlist"]
func CompileEdition(v cue.Value) (catalog.Edition, error) {
	if err := v.Err(); err != nil {
		return catalog.Edition{}, formatCUEError(err)
	}

	var ed catalog.Edition
	if labels := v.Path().Selectors(); len(labels) > 0 {
		ed.Name = unquote(labels[len(labels)-1].String())
	}

	modsVal := v.LookupPath(cue.ParsePath("modules"))
	if !modsVal.Exists() {
		return catalog.Edition{}, &CompileError{
			Field:   fmt.Sprintf("edition.%s.modules", ed.Name),
			Message: "modules list is required",
			Pos:     v.Pos(),
		}
	}
	ids, err := stringList(modsVal)
	if err != nil {
		return catalog.Edition{}, err
	}
	for _, id := range ids {
		ed.Modules = append(ed.Modules, ir.ModuleID(id))
	}
	slices.Sort(ed.Modules)
	ed.Modules = slices.Compact(ed.Modules)
	return ed, nil
}
