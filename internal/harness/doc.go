// Package harness runs scripted marketplace scenarios against the real
// services and checks their outcomes.
//
// Every scenario gets a fresh in-memory store, a manual clock starting at
// 2026-01-01T00:00:00Z and a fixed signing key. Steps are sent through the
// gateway exactly as a client would send them, so schema validation,
// policy, idempotency and the error taxonomy all apply.
//
// # Scenario Format
//
//	name: ring_settles
//	description: "What this scenario validates"
//	settings:
//	  deposit_window: 2h
//	setup:
//	  - op: intents.submit
//	    actor: alice
//	    payload: { id: A, give: [...], want: { asset_ids: [card-c] } }
//	flow:
//	  - op: matching.run
//	    actor: ops
//	    key: run-1
//	    at: +1m
//	  - op: cycleProposals.accept
//	    actor: alice
//	    payload: { proposal_id: "${proposal:A,B,C}" }
//	  - op: settlement.start
//	    actor: alice
//	    payload: { cycle_id: "${proposal:A,B,C}" }
//	    save: { deadline: deposit_deadline_at }
//	  - op: settlement.expireDepositWindow
//	    actor: ops
//	    at: +10m
//	    expect: { code: precondition_failed, reason: deadline_not_reached }
//	assertions:
//	  - type: event_count
//	    event: leg.deposited
//	    count: 0
//	  - type: final_state
//	    record: timeline
//	    id: "${proposal:A,B,C}"
//	    expect: { state: escrow.pending }
//
// # Assertion Types
//
//   - event_count: exactly count journal events of a type (optionally one subject)
//   - event_order: event types appear in the journal in the given order
//   - final_state: an intent, proposal, commit, timeline or receipt matches expect
//   - receipt_verified: a cycle's receipt carries a valid signature
//
// # Golden Traces
//
// The trace records each step's outcome and the journal events it caused.
// Proposal and run ids are content addresses, so the trace shows them by
// alias: proposal:A,B,C for the proposal over intents A, B and C, and
// run:actor/key for a matching run.
package harness
