package ir

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainRun      = "swapgraph/run/v1"
	DomainProposal = "swapgraph/proposal/v1"
	DomainSnapshot = "swapgraph/snapshot/v1"
	DomainEvent    = "swapgraph/event/v1"
	DomainReceipt  = "swapgraph/receipt/v1"
	DomainPayload  = "swapgraph/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes the canonical form of v under domain.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, canonical), nil
}

// RunID derives a matching run id from the requesting actor and key.
// Identical requests in independent stores get identical ids.
func RunID(actor, idempotencyKey string) string {
	obj := map[string]any{
		"actor":           actor,
		"idempotency_key": idempotencyKey,
	}
	id, err := HashCanonical(DomainRun, obj)
	if err != nil {
		panic(fmt.Sprintf("RunID: %v", err))
	}
	return "run_" + id[:32]
}

// ProposalID computes the content address of a proposal within a run.
func ProposalID(runID string, participants []Participant) (string, error) {
	obj := map[string]any{
		"run_id":       runID,
		"participants": participants,
	}
	id, err := HashCanonical(DomainProposal, obj)
	if err != nil {
		return "", fmt.Errorf("ProposalID: %w", err)
	}
	return id, nil
}

// SnapshotHash fingerprints the intent snapshot a run was computed from.
// Order-independent: intents are hashed sorted by id.
func SnapshotHash(intents []SwapIntent) (string, error) {
	sorted := slices.Clone(intents)
	slices.SortFunc(sorted, func(a, b SwapIntent) int {
		return cmp.Compare(a.ID, b.ID)
	})
	entries := make([]map[string]any, len(sorted))
	for i, in := range sorted {
		entries[i] = map[string]any{
			"id":     in.ID,
			"actor":  in.Actor,
			"give":   in.Give,
			"want":   in.Want,
			"status": in.Status,
		}
	}
	id, err := HashCanonical(DomainSnapshot, map[string]any{"intents": entries})
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: %w", err)
	}
	return id, nil
}

// EventID derives a stable event id from the event type, its subject and a
// discriminator that names the transition. Replaying the same transition
// yields the same id, so the journal never stores it twice.
func EventID(eventType, subject, discriminator string) string {
	obj := map[string]any{
		"type":          eventType,
		"subject":       subject,
		"discriminator": discriminator,
	}
	id, err := HashCanonical(DomainEvent, obj)
	if err != nil {
		panic(fmt.Sprintf("EventID: %v", err))
	}
	return id
}

// ReceiptID is derived from the cycle id alone: one receipt per cycle.
func ReceiptID(cycleID string) string {
	id, err := HashCanonical(DomainReceipt, map[string]any{"cycle_id": cycleID})
	if err != nil {
		panic(fmt.Sprintf("ReceiptID: %v", err))
	}
	return "rcpt_" + id[:32]
}

// PayloadDigest fingerprints a request payload for idempotency checks.
func PayloadDigest(payload any) (string, error) {
	id, err := HashCanonical(DomainPayload, payload)
	if err != nil {
		return "", fmt.Errorf("PayloadDigest: %w", err)
	}
	return id, nil
}

// MustPayloadDigest is like PayloadDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPayloadDigest(payload any) string {
	d, err := PayloadDigest(payload)
	if err != nil {
		panic(err)
	}
	return d
}
