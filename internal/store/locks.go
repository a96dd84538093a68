package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lease is the persisted rebuild lock row for one lock key.
type Lease struct {
	Key        string
	Holder     string
	Token      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Pinned     bool
	Reason     string
}

// Expired reports whether the lease has run out at now. Pinned leases never
// expire.
func (l Lease) Expired(now time.Time) bool {
	return !l.Pinned && !now.Before(l.ExpiresAt)
}

// TryAcquireLease inserts the lease, or takes over an existing row whose
// lease is expired at now and not pinned. The whole check runs in one
// statement so two processes cannot both win.
func (s *Store) TryAcquireLease(ctx context.Context, l Lease, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rebuild_locks (key, holder, token, acquired_at, expires_at, pinned, reason)
		VALUES (?, ?, ?, ?, ?, 0, '')
		ON CONFLICT(key) DO UPDATE SET
			holder = excluded.holder,
			token = excluded.token,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at,
			pinned = 0,
			reason = ''
		WHERE rebuild_locks.pinned = 0 AND rebuild_locks.expires_at <= ?
	`,
		l.Key,
		l.Holder,
		l.Token,
		toUnix(l.AcquiredAt),
		toUnix(l.ExpiresAt),
		toUnix(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.Key, err)
	}
	return n > 0, nil
}

// ReadLease returns the lease row for key.
func (s *Store) ReadLease(ctx context.Context, key string) (Lease, error) {
	var (
		l                     Lease
		acquiredAt, expiresAt int64
		pinned                int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, holder, token, acquired_at, expires_at, pinned, reason
		FROM rebuild_locks WHERE key = ?
	`, key).Scan(&l.Key, &l.Holder, &l.Token, &acquiredAt, &expiresAt, &pinned, &l.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return Lease{}, fmt.Errorf("lease %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Lease{}, fmt.Errorf("read lease %s: %w", key, err)
	}
	l.AcquiredAt = fromUnix(acquiredAt)
	l.ExpiresAt = fromUnix(expiresAt)
	l.Pinned = pinned != 0
	return l, nil
}

// RefreshLease moves the expiry of the lease held with token. It fails with
// ErrNotFound when the token no longer owns the key.
func (s *Store) RefreshLease(ctx context.Context, key, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rebuild_locks SET expires_at = ?
		WHERE key = ? AND token = ?
	`, toUnix(expiresAt), key, token)
	return leaseUpdated(res, err, "refresh", key)
}

// PinLease marks the lease held with token as pinned so it survives expiry
// and can only be cleared manually.
func (s *Store) PinLease(ctx context.Context, key, token, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rebuild_locks SET pinned = 1, reason = ?
		WHERE key = ? AND token = ?
	`, reason, key, token)
	return leaseUpdated(res, err, "pin", key)
}

// ReleaseLease deletes the unpinned lease held with token.
func (s *Store) ReleaseLease(ctx context.Context, key, token string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rebuild_locks
		WHERE key = ? AND token = ? AND pinned = 0
	`, key, token)
	return leaseUpdated(res, err, "release", key)
}

// DeleteExpiredLease removes the lease if it is expired at now and not
// pinned.
func (s *Store) DeleteExpiredLease(ctx context.Context, key string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rebuild_locks
		WHERE key = ? AND pinned = 0 AND expires_at <= ?
	`, key, toUnix(now))
	if err != nil {
		return false, fmt.Errorf("clear expired lease %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear expired lease %s: %w", key, err)
	}
	return n > 0, nil
}

// DeleteLease removes the lease unconditionally and returns what was
// removed.
func (s *Store) DeleteLease(ctx context.Context, key string) (Lease, bool, error) {
	var (
		evicted Lease
		found   bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			acquiredAt, expiresAt int64
			pinned                int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT key, holder, token, acquired_at, expires_at, pinned, reason
			FROM rebuild_locks WHERE key = ?
		`, key).Scan(&evicted.Key, &evicted.Holder, &evicted.Token, &acquiredAt, &expiresAt, &pinned, &evicted.Reason)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		evicted.AcquiredAt = fromUnix(acquiredAt)
		evicted.ExpiresAt = fromUnix(expiresAt)
		evicted.Pinned = pinned != 0
		found = true

		_, err = tx.ExecContext(ctx, `DELETE FROM rebuild_locks WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return Lease{}, false, fmt.Errorf("delete lease %s: %w", key, err)
	}
	return evicted, found, nil
}

func leaseUpdated(res sql.Result, err error, op, key string) error {
	if err != nil {
		return fmt.Errorf("%s lease %s: %w", op, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s lease %s: %w", op, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s lease %s: %w", op, key, ErrNotFound)
	}
	return nil
}
