package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted marketplace session: a sequence of gateway
// invocations with expected outcomes, followed by assertions on the journal
// and on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings overrides service defaults for this scenario.
	Settings Settings `yaml:"settings,omitempty"`

	// Setup steps must all succeed; a failing setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are checked against their expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions validate the journal and final state.
	// Supported types: event_count, event_order, final_state, receipt_verified
	Assertions []Assertion `yaml:"assertions"`
}

// Settings tunes the services a scenario runs against.
type Settings struct {
	// DepositWindow is a Go duration ("24h"). Empty keeps the default.
	DepositWindow string `yaml:"deposit_window,omitempty"`

	// ProposalTTL is a Go duration ("1h"). Empty keeps the default.
	ProposalTTL string `yaml:"proposal_ttl,omitempty"`

	// Policy holds CEL rules keyed by operation. Empty allows everything.
	Policy map[string][]string `yaml:"policy,omitempty"`
}

// Step is one gateway invocation.
//
// String values in Payload, At and Save targets may reference variables as
// ${name}. ${proposal:A,B,C} resolves to the latest proposal whose intent
// set is exactly {A, B, C}.
type Step struct {
	// Op is the operation name (e.g. "settlement.start").
	Op string `yaml:"op"`

	Actor string `yaml:"actor"`

	// Key is the idempotency key. Optional.
	Key string `yaml:"key,omitempty"`

	// At is the occurred_at of the step: "+90m" (offset from the scenario
	// epoch), an RFC 3339 timestamp, or empty to reuse the previous step's.
	At string `yaml:"at,omitempty"`

	Payload map[string]any `yaml:"payload"`

	// Save binds variables to fields of the result, by dotted path
	// (e.g. {deadline: deposit_deadline_at}).
	Save map[string]string `yaml:"save,omitempty"`

	// Expect specifies the expected outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a flow step.
type Expect struct {
	// Code is "ok" or an error code such as "precondition_failed".
	// Empty means "ok".
	Code string `yaml:"code,omitempty"`

	// Reason is the expected details.reason_code of an error.
	Reason string `yaml:"reason,omitempty"`

	// Result is a subset match against the JSON form of the result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the journal or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": exactly Count journal events of Event (and Subject)
	// - "event_order": Events appear in the journal in order
	// - "final_state": the Record given by ID matches Expect
	// - "receipt_verified": the receipt of cycle ID carries a valid signature
	Type string `yaml:"type"`

	// Event is the journal event type (used by event_count).
	Event string `yaml:"event,omitempty"`

	// Subject narrows event_count and event_order to one subject.
	Subject string `yaml:"subject,omitempty"`

	// Count is the expected number of events (used by event_count).
	Count *int `yaml:"count,omitempty"`

	// Events is the expected event type order (used by event_order).
	Events []string `yaml:"events,omitempty"`

	// Record is intent, proposal, commit, timeline or receipt (used by final_state).
	Record string `yaml:"record,omitempty"`

	// ID identifies the record (used by final_state and receipt_verified).
	ID string `yaml:"id,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount      = "event_count"
	AssertEventOrder      = "event_order"
	AssertFinalState      = "final_state"
	AssertReceiptVerified = "receipt_verified"
)

// Record kinds for final_state assertions.
const (
	RecordIntent   = "intent"
	RecordProposal = "proposal"
	RecordCommit   = "commit"
	RecordTimeline = "timeline"
	RecordReceipt  = "receipt"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for _, d := range []struct{ field, value string }{
		{"settings.deposit_window", s.Settings.DepositWindow},
		{"settings.proposal_ttl", s.Settings.ProposalTTL},
	} {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			return fmt.Errorf("%s: %q is not a positive duration", d.field, d.value)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	if step.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	if step.Expect != nil && step.Expect.Reason != "" && (step.Expect.Code == "" || step.Expect.Code == outcomeOK) {
		return fmt.Errorf("expect.reason requires an error code")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("event_count requires event")
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("event_count requires a non-negative count")
		}
	case AssertEventOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("event_order requires at least two events")
		}
	case AssertFinalState:
		switch a.Record {
		case RecordIntent, RecordProposal, RecordCommit, RecordTimeline, RecordReceipt:
		default:
			return fmt.Errorf("final_state: unknown record %q", a.Record)
		}
		if a.ID == "" {
			return fmt.Errorf("final_state requires id")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("final_state requires expect")
		}
	case AssertReceiptVerified:
		if a.ID == "" {
			return fmt.Errorf("receipt_verified requires id")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
