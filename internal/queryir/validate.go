package queryir

import (
	"fmt"
	"regexp"

	"github.com/roach88/storebus/internal/ir"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks that every table and column name in q is a plain
// lowercase identifier and that filter values are scalars. It returns all
// problems found, or nil.
func Validate(q Query) []error {
	v := &validator{}
	v.query(q)
	return v.errs
}

type validator struct {
	errs []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) ident(kind, name string) {
	if !identifier.MatchString(name) {
		v.addf("invalid %s name %q", kind, name)
	}
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case Select:
		v.selectNode(query)
	case *Select:
		if query == nil {
			v.addf("nil query")
			return
		}
		v.selectNode(*query)
	default:
		v.addf("unsupported query type %T", q)
	}
}

func (v *validator) selectNode(s Select) {
	v.ident("table", s.From)
	for _, c := range s.Columns {
		v.ident("column", c)
	}
	for _, c := range s.OrderBy {
		v.ident("column", c)
	}
	if s.Key != "" {
		v.ident("column", s.Key)
	}
	if s.Filter != nil {
		v.predicate(s.Filter)
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.ident("column", pred.Field)
		v.scalar(pred.Field, pred.Value)
	case In:
		v.ident("column", pred.Field)
		for _, val := range pred.Values {
			v.scalar(pred.Field, val)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	default:
		v.addf("unsupported predicate type %T", p)
	}
}

func (v *validator) scalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil:
		v.addf("column %s: missing value", field)
	default:
		v.addf("column %s: value must be a string, int or bool, got %T", field, val)
	}
}
