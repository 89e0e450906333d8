// Package ir provides the canonical record types for SwapGraph.
//
// Every package that touches persisted state imports ir; ir imports nothing
// internal. Records are plain structs with snake_case JSON tags.
//
// Key constraints:
//   - NO float types anywhere. Valuations use decimal.Decimal, which
//     serializes as a JSON string.
//   - Identity is content-addressed: SHA-256 with a domain prefix over
//     RFC 8785 canonical JSON (see hash.go and canonical.go).
//   - Timestamps are UTC wall-clock values supplied by the caller
//     (occurred_at), never read implicitly inside the core.
package ir
