// Package service is the boundary a transport layer calls.
//
// It owns no state of its own: every operation loads what it needs from
// the store, runs the scenario processor or the rebuild engine, and
// persists the result. Two groups of operations live here. The scenario
// operations (Find, CreateScenario, ChangeModulesState and friends) edit
// scenarios without touching the store's modules. The rebuild flows
// (Redeploy, Install, RebuildToEdition, LegacyUpgrade) build a scenario
// and start a rebuild for it in one call.
//
// Every mutating operation fails with ErrDemoMode when the service runs in
// demo mode.
package service
