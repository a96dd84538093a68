package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/queryir"
)

// SQLCompiler compiles queryir queries to parameterized SQLite SQL.
//
// Values are always bound as parameters, never interpolated, and every
// query carries an ORDER BY so listings are stable.
type SQLCompiler struct{}

// NewSQLCompiler creates a compiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and returns the SQL text and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if errs := queryir.Validate(q); len(errs) > 0 {
		return "", nil, fmt.Errorf("invalid query: %w", errors.Join(errs...))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ", ")
	}

	var (
		where  string
		params []any
	)
	if q.Filter != nil {
		sql, p, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + sql
		params = p
	}

	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", columns, q.From, where, orderBy(q)), params, nil
}

// orderBy always ends with the key column so rows with equal sort keys
// still come back in a fixed order.
func orderBy(q queryir.Select) string {
	key := q.Key
	if key == "" {
		key = "id"
	}
	cols := append([]string(nil), q.OrderBy...)
	if !slices.Contains(cols, key) {
		cols = append(cols, key)
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " COLLATE BINARY ASC"
	}
	return strings.Join(parts, ", ")
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil

	case queryir.In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := irValueToParam(v)
			if err != nil {
				return "", nil, fmt.Errorf("%s[%d]: %w", pred.Field, i, err)
			}
			params[i] = param
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, marks), params, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var (
			parts  []string
			params []any
		)
		for _, sub := range pred.Predicates {
			sql, p, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
		return strings.Join(parts, " AND "), params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// irValueToParam converts a scalar IRValue into a database/sql argument.
// Booleans become 0/1 to match the INTEGER columns SQLite uses for them.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
