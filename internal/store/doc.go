// Package store provides SQLite-backed persistence for storebus.
//
// Tables:
//   - scenarios: one row per scenario, the full scenario as JSON plus a
//     transitions fingerprint
//   - rebuild_states: executor progress, at most one running row
//   - rebuild_locks: the rebuild lease, one row per lock key
//   - installed_modules: the store's installed module set (a catalog.Source)
//   - script_state: key/value bookkeeping written by the final rebuild step
//
// # Ordering
//
// Listing queries always order by an explicit key and fall back to
// id COLLATE BINARY so results do not depend on insertion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Times are stored as INTEGER unix nanoseconds in UTC.
package store
