package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storebus/internal/ir"
)

// SaveRebuild inserts or updates a rebuild state.
//
// An update only lands when the incoming Seq is not behind the stored one,
// so a late writer cannot roll progress back; such writes fail with
// ErrStaleRebuild. Saving a second running rebuild fails with
// ErrRebuildRunning.
func (s *Store) SaveRebuild(ctx context.Context, st ir.RebuildState) error {
	if st.ID == "" {
		return fmt.Errorf("save rebuild: missing id")
	}
	body, err := marshalRebuild(st)
	if err != nil {
		return fmt.Errorf("save rebuild %s: %w", st.ID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rebuild_states (id, scenario_id, status, seq, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			seq = excluded.seq,
			body = excluded.body
		WHERE rebuild_states.seq <= excluded.seq
	`,
		st.ID,
		st.ScenarioID,
		string(st.Status),
		st.Seq,
		toUnix(st.CreatedAt),
		body,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("save rebuild %s: %w", st.ID, ErrRebuildRunning)
	}
	if err != nil {
		return fmt.Errorf("save rebuild %s: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save rebuild %s: %w", st.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save rebuild %s at seq %d: %w", st.ID, st.Seq, ErrStaleRebuild)
	}
	return nil
}

// FindRebuild loads a rebuild state by id.
func (s *Store) FindRebuild(ctx context.Context, id string) (ir.RebuildState, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rebuild_states WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RebuildState{}, fmt.Errorf("rebuild %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("find rebuild %s: %w", id, err)
	}
	st, err := unmarshalRebuild(body)
	if err != nil {
		return ir.RebuildState{}, fmt.Errorf("find rebuild %s: %w", id, err)
	}
	return st, nil
}

// ActiveRebuild returns the running rebuild, if any.
func (s *Store) ActiveRebuild(ctx context.Context) (ir.RebuildState, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM rebuild_states
		WHERE status = ?
		ORDER BY created_at DESC, id COLLATE BINARY ASC
		LIMIT 1
	`, string(ir.StatusRunning)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RebuildState{}, false, nil
	}
	if err != nil {
		return ir.RebuildState{}, false, fmt.Errorf("active rebuild: %w", err)
	}
	st, err := unmarshalRebuild(body)
	if err != nil {
		return ir.RebuildState{}, false, fmt.Errorf("active rebuild: %w", err)
	}
	return st, true, nil
}

// LatestRebuild returns the most recently created rebuild of a scenario.
func (s *Store) LatestRebuild(ctx context.Context, scenarioID string) (ir.RebuildState, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM rebuild_states
		WHERE scenario_id = ?
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, scenarioID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RebuildState{}, false, nil
	}
	if err != nil {
		return ir.RebuildState{}, false, fmt.Errorf("latest rebuild of %s: %w", scenarioID, err)
	}
	st, err := unmarshalRebuild(body)
	if err != nil {
		return ir.RebuildState{}, false, fmt.Errorf("latest rebuild of %s: %w", scenarioID, err)
	}
	return st, true, nil
}
