package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetScriptState records a bookkeeping value written at the end of a
// rebuild.
func (s *Store) SetScriptState(ctx context.Context, name, value string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO script_state (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, name, value, toUnix(now))
	if err != nil {
		return fmt.Errorf("set script state %s: %w", name, err)
	}
	return nil
}

// ScriptState returns the value recorded under name.
func (s *Store) ScriptState(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM script_state WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("script state %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("script state %s: %w", name, err)
	}
	return value, nil
}
