// Package scenario turns change units into a complete, dependency
// consistent set of module transitions.
//
// The Processor converts each change unit into a requested transition
// against installed state and hands them to a Builder. The Builder runs
// every Rule over every unsettled transition until nothing changes:
//
//	seed requested transitions
//	repeat
//	    for each unsettled transition (insertion order)
//	        apply every rule transform (may propose new transitions)
//	        apply every rule filter (may veto or reject)
//	until all settled
//	validate dependency closure
//
// Proposals go through a single merge policy, so the result does not
// depend on which rule fired first. A replaced transition becomes
// unsettled again and is revisited on the next pass. The number of passes
// is bounded; exceeding it yields a FixpointError rather than looping.
package scenario
