// Package store provides SQLite-backed durable state for SwapGraph.
//
// Tables:
//   - intents, proposals, reservations: matching inputs and outputs
//   - matching_runs: immutable run records keyed by run id
//   - commits, timelines, legs, receipts: settlement state
//   - idempotency_records: stored outcomes keyed by (actor, operation, key)
//   - events: append-only journal, doubling as the relay outbox
//
// # Critical Patterns
//
// Atomic operations: every mutating operation runs inside one Update
// transaction, so the idempotency lookup, the state change, the journal
// append and the idempotency record commit together or not at all.
//
// Event deduplication: events.event_id is UNIQUE and appends use
// ON CONFLICT(event_id) DO NOTHING, so replaying a transition never
// duplicates its event.
//
// Deterministic reads: list queries order by id COLLATE BINARY (or seq for
// events) and return empty slices, never nil.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - _txlock=immediate: transactions take the write lock on BEGIN
//   - one open connection: SQLite has a single writer
package store
