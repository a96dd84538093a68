// Package catalog defines how the scenario builder sees modules.
//
// A Source answers two questions: which releases exist for a module id,
// and which modules match a filter. The installed-module table in the store
// and the marketplace catalog compiled from CUE files both implement it,
// which keeps the builder independent of where module metadata lives.
package catalog
