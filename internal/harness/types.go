package harness

// Step phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

const outcomeOK = "ok"

// JournalEvent is a journal entry as recorded in the trace. Subjects that
// are content addresses are rendered through their scenario alias.
type JournalEvent struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
}

// TraceEvent records one executed step and the journal events it caused.
type TraceEvent struct {
	Seq       int            `json:"seq"`
	Phase     string         `json:"phase"`
	Operation string         `json:"operation"`
	Actor     string         `json:"actor"`
	Outcome   string         `json:"outcome"` // "ok" or the error code
	Reason    string         `json:"reason,omitempty"`
	Events    []JournalEvent `json:"events,omitempty"`

	// Result is the JSON form of the step result. Not part of golden output:
	// it carries timestamps and signatures.
	Result any `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Vars holds the variables bound by save clauses and proposal lookups.
	Vars map[string]string `json:"vars,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Vars:   map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
