package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/storebus/internal/store"
)

// Lock defaults.
const (
	DefaultLockKey = "rebuild"
	DefaultLockTTL = 10 * time.Minute
)

// LockManager guards rebuilds with a lease on one store row.
//
// A lease has a random token and an expiry. The holder refreshes it while
// working and releases it when done. An expired lease can be taken over by
// anyone; a pinned lease (left behind by a fatal step error) only goes away
// through ClearAnySetRebuildFlags.
type LockManager struct {
	store  *store.Store
	key    string
	ttl    time.Duration
	clock  Clock
	tokens IDGenerator
	logger *slog.Logger
}

// LockOption configures a LockManager.
type LockOption func(*LockManager)

// WithLockKey sets the row key the lease lives under.
func WithLockKey(key string) LockOption {
	return func(m *LockManager) {
		m.key = key
	}
}

// WithLockTTL sets how long a lease lives without a refresh.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(m *LockManager) {
		m.ttl = ttl
	}
}

// WithLockClock overrides the clock used for expiry.
func WithLockClock(c Clock) LockOption {
	return func(m *LockManager) {
		m.clock = c
	}
}

// WithLockTokens overrides the lease token generator.
func WithLockTokens(g IDGenerator) LockOption {
	return func(m *LockManager) {
		m.tokens = g
	}
}

// WithLockLogger sets the logger.
func WithLockLogger(l *slog.Logger) LockOption {
	return func(m *LockManager) {
		m.logger = l
	}
}

// NewLockManager creates a lock manager over s.
func NewLockManager(s *store.Store, opts ...LockOption) *LockManager {
	m := &LockManager{
		store:  s,
		key:    DefaultLockKey,
		ttl:    DefaultLockTTL,
		clock:  SystemClock{},
		tokens: RandomGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the lock key.
func (m *LockManager) Key() string {
	return m.key
}

// Acquire takes the lease for holder. It fails with LockHeldError when a
// live or pinned lease belongs to someone else.
func (m *LockManager) Acquire(ctx context.Context, holder string) (store.Lease, error) {
	now := m.clock.Now()
	lease := store.Lease{
		Key:        m.key,
		Holder:     holder,
		Token:      m.tokens.Generate(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}

	ok, err := m.store.TryAcquireLease(ctx, lease, now)
	if err != nil {
		return store.Lease{}, fmt.Errorf("acquire rebuild lock: %w", err)
	}
	if !ok {
		held, err := m.store.ReadLease(ctx, m.key)
		if errors.Is(err, store.ErrNotFound) {
			// Released between the two statements; the caller may retry.
			return store.Lease{}, &LockHeldError{Key: m.key}
		}
		if err != nil {
			return store.Lease{}, fmt.Errorf("acquire rebuild lock: %w", err)
		}
		return store.Lease{}, &LockHeldError{
			Key:       m.key,
			Holder:    held.Holder,
			ExpiresAt: held.ExpiresAt,
			Pinned:    held.Pinned,
			Reason:    held.Reason,
		}
	}

	m.logger.Debug("rebuild lock acquired",
		"key", m.key,
		"holder", holder,
		"expires_at", lease.ExpiresAt,
	)
	return lease, nil
}

// Refresh extends the lease held with token by the TTL.
func (m *LockManager) Refresh(ctx context.Context, token string) error {
	err := m.store.RefreshLease(ctx, m.key, token, m.clock.Now().Add(m.ttl))
	return m.leaseErr("refresh", err)
}

// Release gives up the lease held with token.
func (m *LockManager) Release(ctx context.Context, token string) error {
	err := m.store.ReleaseLease(ctx, m.key, token)
	if err == nil {
		m.logger.Debug("rebuild lock released", "key", m.key)
	}
	return m.leaseErr("release", err)
}

// Pin keeps the lease held with token past its expiry, recording why.
func (m *LockManager) Pin(ctx context.Context, token, reason string) error {
	err := m.store.PinLease(ctx, m.key, token, reason)
	if err == nil {
		m.logger.Warn("rebuild lock pinned", "key", m.key, "reason", reason)
	}
	return m.leaseErr("pin", err)
}

// ClearStale removes an expired, unpinned lease. It reports whether one was
// removed.
func (m *LockManager) ClearStale(ctx context.Context) (bool, error) {
	cleared, err := m.store.DeleteExpiredLease(ctx, m.key, m.clock.Now())
	if err != nil {
		return false, fmt.Errorf("clear stale rebuild lock: %w", err)
	}
	if cleared {
		m.logger.Info("stale rebuild lock cleared", "key", m.key)
	}
	return cleared, nil
}

// Status returns the current lease, if any.
func (m *LockManager) Status(ctx context.Context) (store.Lease, bool, error) {
	lease, err := m.store.ReadLease(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Lease{}, false, nil
	}
	if err != nil {
		return store.Lease{}, false, fmt.Errorf("rebuild lock status: %w", err)
	}
	return lease, true, nil
}

// ClearAnySetRebuildFlags removes the lease whatever its state and returns
// the evicted lease. Any rebuild still holding it will fail with
// ErrLeaseLost on its next step.
func (m *LockManager) ClearAnySetRebuildFlags(ctx context.Context) (store.Lease, bool, error) {
	evicted, found, err := m.store.DeleteLease(ctx, m.key)
	if err != nil {
		return store.Lease{}, false, fmt.Errorf("clear rebuild lock: %w", err)
	}
	if found {
		m.logger.Warn("rebuild lock cleared",
			"key", m.key,
			"holder", evicted.Holder,
			"pinned", evicted.Pinned,
			"reason", evicted.Reason,
		)
	}
	return evicted, found, nil
}

func (m *LockManager) leaseErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s rebuild lock %s: %w", op, m.key, ErrLeaseLost)
	}
	if err != nil {
		return fmt.Errorf("%s rebuild lock %s: %w", op, m.key, err)
	}
	return nil
}
