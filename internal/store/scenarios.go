package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/queryir"
	"github.com/roach88/storebus/internal/querysql"
)

// SaveScenario inserts or replaces a scenario.
// Uses ON CONFLICT(id) DO UPDATE so repeated saves of the same scenario
// are idempotent.
func (s *Store) SaveScenario(ctx context.Context, sc *ir.Scenario) error {
	return saveScenario(ctx, s.db, sc)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveScenario(ctx context.Context, db execer, sc *ir.Scenario) error {
	if sc == nil || sc.ID == "" {
		return fmt.Errorf("save scenario: missing id")
	}
	body, err := marshalScenario(sc)
	if err != nil {
		return fmt.Errorf("save scenario %s: %w", sc.ID, err)
	}
	fp, err := ir.TransitionsFingerprint(sc.Transitions)
	if err != nil {
		return fmt.Errorf("save scenario %s: %w", sc.ID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO scenarios (id, type, date, updated_at, fingerprint, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			updated_at = excluded.updated_at,
			fingerprint = excluded.fingerprint,
			body = excluded.body
	`,
		sc.ID,
		string(sc.Type),
		toUnix(sc.Date),
		toUnix(sc.UpdatedAt),
		fp,
		body,
	)
	if err != nil {
		return fmt.Errorf("save scenario %s: %w", sc.ID, err)
	}
	return nil
}

// FindScenario loads a scenario by id. A missing scenario yields an error
// wrapping ErrNotFound.
func (s *Store) FindScenario(ctx context.Context, id string) (*ir.Scenario, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM scenarios WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find scenario %s: %w", id, err)
	}
	sc, err := unmarshalScenario(body)
	if err != nil {
		return nil, fmt.Errorf("find scenario %s: %w", id, err)
	}
	return sc, nil
}

// ScenarioFingerprint returns the transitions fingerprint recorded when the
// scenario was last saved.
func (s *Store) ScenarioFingerprint(ctx context.Context, id string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, `SELECT fingerprint FROM scenarios WHERE id = ?`, id).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("scenario fingerprint %s: %w", id, err)
	}
	return fp, nil
}

// RemoveScenario deletes a scenario and, through the foreign key, every
// rebuild state that ran it.
func (s *Store) RemoveScenario(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove scenario %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove scenario %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListScenarios returns scenarios ordered by creation date then id. An
// empty typ lists every type.
//
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListScenarios(ctx context.Context, typ ir.ScenarioType) ([]*ir.Scenario, error) {
	q := queryir.Select{
		From:    "scenarios",
		Columns: []string{"body"},
		OrderBy: []string{"date"},
	}
	if typ != "" {
		q.Filter = queryir.Equals{Field: "type", Value: ir.IRString(typ)}
	}
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := []*ir.Scenario{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		sc, err := unmarshalScenario(body)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return scenarios, nil
}
