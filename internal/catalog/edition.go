package catalog

import (
	"fmt"
	"slices"

	"github.com/roach88/storebus/internal/ir"
)

// Edition is a named product tier: the set of plugin and skin modules a
// store on that tier runs.
type Edition struct {
	Name    string        `json:"name"`
	Modules []ir.ModuleID `json:"modules"`
}

// Includes reports whether id belongs to the edition.
func (e Edition) Includes(id ir.ModuleID) bool {
	return slices.Contains(e.Modules, id)
}

// Editions indexes editions by name.
type Editions map[string]Edition

// Get returns the named edition.
func (es Editions) Get(name string) (Edition, error) {
	e, ok := es[name]
	if !ok {
		return Edition{}, fmt.Errorf("unknown edition %q", name)
	}
	return e, nil
}

// Names returns edition names in sorted order.
func (es Editions) Names() []string {
	names := make([]string, 0, len(es))
	for name := range es {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Catalog is a compiled marketplace: every available release plus the
// editions built from them.
type Catalog struct {
	Marketplace *Memory
	Editions    Editions
}
