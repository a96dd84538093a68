package queryir

import "github.com/roach88/storebus/internal/ir"

// Query is a sealed interface for query nodes.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface for filter conditions.
type Predicate interface {
	predicateNode()
}

// Select reads rows from one table.
type Select struct {
	From    string    // table name
	Columns []string  // nil selects every column
	Filter  Predicate // nil matches every row
	OrderBy []string  // columns, ascending
	Key     string    // unique column ending every ORDER BY; "id" when empty
}

func (Select) queryNode() {}

// Equals matches rows whose field equals a literal value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches rows whose field equals any of the values. An empty list
// matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// And is a conjunction. An empty And matches every row.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
