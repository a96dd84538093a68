// Package engine runs rebuilds: it turns a persisted scenario into a
// rebuild state, walks that state through its step plan and guards the
// whole run with the rebuild lock.
//
// ARCHITECTURE:
//
//	Resolver.StartRebuild  -> lock lease + running RebuildState
//	Executor.Run           -> Execute one step call, persist, repeat
//	LockManager            -> Acquire/Refresh/Release/Pin on a store row
//
// Execute is a pure state transition; Run and FastForward are the only
// writers of rebuild state. Steps run strictly one after another and a step
// may take several calls, keeping its per-module progress in the step data
// so a crashed or retried call redoes nothing that already finished.
//
// Failure handling:
//   - recoverable step errors keep the rebuild running with attempts+1
//   - fatal errors, and recoverable ones past the attempt quota, fail the
//     rebuild and pin the lease so nobody starts another rebuild on top of
//     a half-applied one
//
// Ordering within a rebuild uses RebuildState.Seq, a logical counter bumped
// once per step call. Wall time is only used for timestamps and lease
// expiry.
package engine
