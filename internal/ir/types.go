package ir

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus is the lifecycle status of a SwapIntent.
type IntentStatus string

const (
	IntentActive    IntentStatus = "active"
	IntentReserved  IntentStatus = "reserved"
	IntentCancelled IntentStatus = "cancelled"
	IntentFulfilled IntentStatus = "fulfilled"
)

// Terminal reports whether the intent can no longer change.
func (s IntentStatus) Terminal() bool {
	return s == IntentCancelled || s == IntentFulfilled
}

// Asset is one tradable item offered in an intent.
type Asset struct {
	ID    string          `json:"id"`
	Class string          `json:"class"`
	Value decimal.Decimal `json:"value"`
}

// WantSpec describes what an intent will accept in return.
// An asset matches if its id is listed in AssetIDs or its class in Classes.
type WantSpec struct {
	AssetIDs []string        `json:"asset_ids,omitempty"`
	Classes  []string        `json:"classes,omitempty"`
	MinValue decimal.Decimal `json:"min_value"`
}

// Accepts reports whether a single asset matches the want.
func (w WantSpec) Accepts(a Asset) bool {
	for _, id := range w.AssetIDs {
		if id == a.ID {
			return true
		}
	}
	for _, c := range w.Classes {
		if c == a.Class {
			return true
		}
	}
	return false
}

// SwapIntent is a participant's offer/want pair.
type SwapIntent struct {
	ID        string       `json:"id"`
	Actor     string       `json:"actor"`
	Give      []Asset      `json:"give"`
	Want      WantSpec     `json:"want"`
	Status    IntentStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Participant is one position in a cycle proposal.
// Give is handed to the next participant; Receive comes from the previous one.
type Participant struct {
	Actor    string  `json:"actor"`
	IntentID string  `json:"intent_id"`
	Give     []Asset `json:"give"`
	Receive  []Asset `json:"receive"`
}

// ProposalStatus is the lifecycle status of a CycleProposal.
type ProposalStatus string

const (
	ProposalOpen       ProposalStatus = "open"
	ProposalAccepted   ProposalStatus = "accepted"
	ProposalSuperseded ProposalStatus = "superseded"
	ProposalExpired    ProposalStatus = "expired"
)

// CycleProposal is a scored cycle awaiting acceptance.
// Content fields never change after creation; only Status moves off open.
type CycleProposal struct {
	ID              string          `json:"id"`
	RunID           string          `json:"run_id"`
	Participants    []Participant   `json:"participants"`
	ConfidenceScore decimal.Decimal `json:"confidence_score"`
	Status          ProposalStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// IntentIDs returns participant intent ids in cycle order.
func (p CycleProposal) IntentIDs() []string {
	ids := make([]string, len(p.Participants))
	for i, part := range p.Participants {
		ids[i] = part.IntentID
	}
	return ids
}

// AssetIDs returns every asset id handed off in the cycle, in cycle order.
func (p CycleProposal) AssetIDs() []string {
	ids := []string{}
	for _, part := range p.Participants {
		for _, a := range part.Give {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Bounds limits a matching run.
type Bounds struct {
	MaxCycleLength int   `json:"max_cycle_length"`
	MaxCandidates  int   `json:"max_candidates"`
	TimeoutMS      int64 `json:"timeout_ms"`
}

// Timeout returns the wall-clock budget as a duration.
func (b Bounds) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// RunStats are the counters recorded for a matching run.
type RunStats struct {
	CandidateCycles        int  `json:"candidate_cycles"`
	SelectedProposalsCount int  `json:"selected_proposals_count"`
	ReplacedProposalsCount int  `json:"replaced_proposals_count"`
	ExpiredProposalsCount  int  `json:"expired_proposals_count"`
	SkippedCandidates      int  `json:"skipped_candidates"`
	MaxCyclesReached       bool `json:"max_cycles_reached"`
	TimeoutReached         bool `json:"timeout_reached"`
}

// SelectionSummary records how the authoritative selection was produced.
// Scores are in basis units of 1e-4.
type SelectionSummary struct {
	Method           string `json:"method"`
	TotalScore       int64  `json:"total_score"`
	GreedyTotalScore int64  `json:"greedy_total_score"`
}

// ShadowDiagnostic is the non-authoritative comparison of two selectors.
type ShadowDiagnostic struct {
	Legacy         string `json:"legacy"`
	Candidate      string `json:"candidate"`
	LegacyTotal    int64  `json:"legacy_total"`
	CandidateTotal int64  `json:"candidate_total"`
	Delta          int64  `json:"delta"`
	Agreement      bool   `json:"agreement"`
	Error          string `json:"error,omitempty"`
}

// MatchingRun is the immutable record of one matching invocation.
type MatchingRun struct {
	RunID               string            `json:"run_id"`
	Actor               string            `json:"actor"`
	IdempotencyKey      string            `json:"idempotency_key"`
	SnapshotHash        string            `json:"snapshot_hash"`
	Bounds              Bounds            `json:"bounds"`
	SelectedProposalIDs []string          `json:"selected_proposal_ids"`
	Stats               RunStats          `json:"stats"`
	Selection           SelectionSummary  `json:"selection"`
	Shadow              *ShadowDiagnostic `json:"shadow,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// CommitPhase tracks an accepted proposal through settlement.
type CommitPhase string

const (
	PhaseAccepted  CommitPhase = "accepted"
	PhasePending   CommitPhase = "escrow.pending"
	PhaseExecuting CommitPhase = "escrow.executing"
	PhaseCompleted CommitPhase = "completed"
	PhaseFailed    CommitPhase = "failed"
)

// Commit is the acceptance record that authorizes settlement.
type Commit struct {
	ProposalID string      `json:"proposal_id"`
	AcceptedBy string      `json:"accepted_by"`
	Phase      CommitPhase `json:"phase"`
	CreatedAt  time.Time   `json:"created_at"`
	AcceptedAt time.Time   `json:"accepted_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TimelineState is the settlement state of a cycle.
type TimelineState string

const (
	StatePending   TimelineState = "escrow.pending"
	StateExecuting TimelineState = "escrow.executing"
	StateCompleted TimelineState = "completed"
	StateFailed    TimelineState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TimelineState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// LegStatus is the custody status of one hand-off.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegDeposited LegStatus = "deposited"
	LegReleased  LegStatus = "released"
	LegRefunded  LegStatus = "refunded"
)

// Leg is one participant-to-participant hand-off, addressed by the
// giving participant's intent id.
type Leg struct {
	Index       int        `json:"index"`
	IntentID    string     `json:"intent_id"`
	FromActor   string     `json:"from_actor"`
	ToActor     string     `json:"to_actor"`
	Assets      []Asset    `json:"assets"`
	Status      LegStatus  `json:"status"`
	DepositRef  string     `json:"deposit_ref,omitempty"`
	DepositedAt *time.Time `json:"deposited_at,omitempty"`
}

// SettlementTimeline is the per-cycle escrow state.
type SettlementTimeline struct {
	CycleID           string        `json:"cycle_id"`
	State             TimelineState `json:"state"`
	Legs              []Leg         `json:"legs"`
	DepositDeadlineAt time.Time     `json:"deposit_deadline_at"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Leg returns the leg given by intentID.
func (t *SettlementTimeline) Leg(intentID string) (*Leg, bool) {
	for i := range t.Legs {
		if t.Legs[i].IntentID == intentID {
			return &t.Legs[i], true
		}
	}
	return nil, false
}

// Outstanding returns intent ids of legs not yet deposited, in leg order.
func (t *SettlementTimeline) Outstanding() []string {
	out := []string{}
	for _, l := range t.Legs {
		if l.Status == LegPending {
			out = append(out, l.IntentID)
		}
	}
	return out
}

// CountLegs returns the number of legs in the given status.
func (t *SettlementTimeline) CountLegs(status LegStatus) int {
	n := 0
	for _, l := range t.Legs {
		if l.Status == status {
			n++
		}
	}
	return n
}

// ReceiptState is the final outcome recorded on a receipt.
type ReceiptState string

const (
	ReceiptSettled ReceiptState = "settled"
	ReceiptFailed  ReceiptState = "failed"
)

// Signature is a detached signature over a receipt's canonical content.
type Signature struct {
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	Value     string `json:"value"`
}

// SwapReceipt is the signed terminal record of a cycle.
type SwapReceipt struct {
	ID         string       `json:"id"`
	CycleID    string       `json:"cycle_id"`
	FinalState ReceiptState `json:"final_state"`
	IntentIDs  []string     `json:"intent_ids"`
	AssetIDs   []string     `json:"asset_ids"`
	ReasonCode string       `json:"reason_code,omitempty"`
	Version    string       `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
	Signature  *Signature   `json:"signature,omitempty"`
}

// Unsigned returns a copy without the signature, which is the signed content.
func (r SwapReceipt) Unsigned() SwapReceipt {
	r.Signature = nil
	return r
}

// IdempotencyRecord is the stored outcome of a keyed mutating call.
// Exactly one of Result or ErrorCode is set.
type IdempotencyRecord struct {
	Actor         string          `json:"actor"`
	Operation     string          `json:"operation"`
	Key           string          `json:"key"`
	PayloadDigest string          `json:"payload_digest"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	ErrorReason   string          `json:"error_reason,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Event is an append-only journal entry. Consumers deduplicate by EventID.
type Event struct {
	Seq        int64           `json:"seq"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	RelayedAt  *time.Time      `json:"relayed_at,omitempty"`
}

// Event types.
const (
	EventIntentCreated      = "intent.created"
	EventIntentCancelled    = "intent.cancelled"
	EventIntentReserved     = "intent.reserved"
	EventIntentUnreserved   = "intent.unreserved"
	EventProposalCreated    = "proposal.created"
	EventProposalSuperseded = "proposal.superseded"
	EventProposalExpired    = "proposal.expired"
	EventProposalAccepted   = "proposal.accepted"
	EventCycleStateChanged  = "cycle.state_changed"
	EventLegDeposited       = "leg.deposited"
	EventReceiptCreated     = "receipt.created"
	EventRunCompleted       = "matching.run_completed"
)
