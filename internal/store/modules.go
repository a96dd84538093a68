package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/queryir"
	"github.com/roach88/storebus/internal/querysql"
)

var moduleColumns = []string{
	"id", "author", "name", "module_name", "version", "type",
	"enabled", "licensed", "dependencies", "incompatible",
}

// Installed returns the installed module set as a catalog.Source.
func (s *Store) Installed() catalog.Source {
	return installedSource{s}
}

type installedSource struct {
	s *Store
}

// Releases returns the installed copy of id, if any.
func (src installedSource) Releases(ctx context.Context, id ir.ModuleID) ([]ir.Module, error) {
	return src.s.ListModules(ctx, catalog.Filter{IDs: []ir.ModuleID{id}})
}

func (src installedSource) List(ctx context.Context, f catalog.Filter) ([]ir.Module, error) {
	return src.s.ListModules(ctx, f)
}

// ListModules returns installed modules matching f, ordered by id.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListModules(ctx context.Context, f catalog.Filter) ([]ir.Module, error) {
	if f.Installed != nil && !*f.Installed {
		return []ir.Module{}, nil
	}

	query, params, err := querysql.NewSQLCompiler().Compile(moduleQuery(f))
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	modules := []ir.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// moduleQuery translates a catalog filter into a query over
// installed_modules.
func moduleQuery(f catalog.Filter) queryir.Select {
	var preds []queryir.Predicate
	if len(f.IDs) > 0 {
		ids := make([]ir.IRValue, len(f.IDs))
		for i, id := range f.IDs {
			ids[i] = ir.IRString(id)
		}
		preds = append(preds, queryir.In{Field: "id", Values: ids})
	}
	if f.Type != "" {
		preds = append(preds, queryir.Equals{Field: "type", Value: ir.IRString(f.Type)})
	}
	if f.Enabled != nil {
		preds = append(preds, queryir.Equals{Field: "enabled", Value: ir.IRBool(*f.Enabled)})
	}
	if f.Licensed != nil {
		preds = append(preds, queryir.Equals{Field: "licensed", Value: ir.IRBool(*f.Licensed)})
	}

	q := queryir.Select{From: "installed_modules", Columns: moduleColumns}
	switch len(preds) {
	case 0:
	case 1:
		q.Filter = preds[0]
	default:
		q.Filter = queryir.And{Predicates: preds}
	}
	return q
}

func scanModule(rows *sql.Rows) (ir.Module, error) {
	var (
		m                  ir.Module
		typ                string
		enabled, licensed  int
		deps, incompatible string
	)
	err := rows.Scan(&m.ID, &m.Author, &m.Name, &m.ModuleName, &m.Version, &typ,
		&enabled, &licensed, &deps, &incompatible)
	if err != nil {
		return ir.Module{}, fmt.Errorf("scan module: %w", err)
	}
	m.Type = ir.ModuleType(typ)
	m.Installed = true
	m.Enabled = enabled != 0
	m.Licensed = licensed != 0
	if m.Dependencies, err = unmarshalDependencies(deps); err != nil {
		return ir.Module{}, fmt.Errorf("module %s: %w", m.ID, err)
	}
	if m.Incompatible, err = unmarshalIDs(incompatible); err != nil {
		return ir.Module{}, fmt.Errorf("module %s: %w", m.ID, err)
	}
	return m, nil
}

// SaveModules upserts installed modules in one transaction.
func (s *Store) SaveModules(ctx context.Context, modules ...ir.Module) error {
	return s.ApplyModules(ctx, modules, nil)
}

// ApplyModules upserts and removes installed modules atomically.
func (s *Store) ApplyModules(ctx context.Context, upserts []ir.Module, removes []ir.ModuleID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range upserts {
			if err := upsertModule(ctx, tx, m); err != nil {
				return err
			}
		}
		for _, id := range removes {
			if _, err := tx.ExecContext(ctx, `DELETE FROM installed_modules WHERE id = ?`, string(id)); err != nil {
				return fmt.Errorf("remove module %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply modules: %w", err)
	}
	return nil
}

func upsertModule(ctx context.Context, tx *sql.Tx, m ir.Module) error {
	deps, err := marshalDependencies(m.Dependencies)
	if err != nil {
		return fmt.Errorf("save module %s: %w", m.ID, err)
	}
	incompatible, err := marshalIDs(m.Incompatible)
	if err != nil {
		return fmt.Errorf("save module %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO installed_modules
		(id, author, name, module_name, version, type, enabled, licensed, dependencies, incompatible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author = excluded.author,
			name = excluded.name,
			module_name = excluded.module_name,
			version = excluded.version,
			type = excluded.type,
			enabled = excluded.enabled,
			licensed = excluded.licensed,
			dependencies = excluded.dependencies,
			incompatible = excluded.incompatible
	`,
		string(m.ID),
		m.Author,
		m.Name,
		m.ModuleName,
		m.Version,
		string(m.Type),
		m.Enabled,
		m.Licensed,
		deps,
		incompatible,
	)
	if err != nil {
		return fmt.Errorf("save module %s: %w", m.ID, err)
	}
	return nil
}

// ResetModules replaces the whole installed module set with modules and
// saves sc, in one transaction. A fresh install uses it so the module table
// and the scenario installing into it never disagree.
func (s *Store) ResetModules(ctx context.Context, modules []ir.Module, sc *ir.Scenario) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM installed_modules`); err != nil {
			return err
		}
		for _, m := range modules {
			if err := upsertModule(ctx, tx, m); err != nil {
				return err
			}
		}
		return saveScenario(ctx, tx, sc)
	})
	if err != nil {
		return fmt.Errorf("reset modules: %w", err)
	}
	return nil
}
