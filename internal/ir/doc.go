// Package ir holds the value types shared by every storebus package:
// modules, change units, transitions, scenarios and rebuild states, plus
// the constrained JSON value model used for free-form scenario metadata and
// step data.
//
// ir imports nothing internal. Every other package builds on it.
//
// Conventions:
//   - JSON tags use snake_case
//   - free-form data is an IRObject (no floats, deterministic key order)
//   - fingerprints are computed over canonical JSON (RFC 8785)
package ir
