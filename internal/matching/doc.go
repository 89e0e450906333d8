// Package matching discovers barter cycles among active swap intents and
// selects a conflict-free set of them to propose.
//
// The pipeline is pure up to the run service:
//
//	BuildGraph -> FindCycles -> BuildProposal -> Optimize
//
// Every stage is deterministic for a given snapshot and bounds: vertices
// are visited in intent id order, adjacency lists are sorted, and ties in
// selection break on proposal id. The only nondeterministic input is the
// cycle-search deadline, which is read from an injected clock and reported
// as timeout_reached rather than as an error.
//
// Service.Run persists the outcome: it retires stale proposals, reserves
// the intents of the selected ones and records the run, all in a single
// store transaction guarded by the caller's idempotency key.
package matching
