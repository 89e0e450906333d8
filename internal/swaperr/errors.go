// Package swaperr defines the structured error taxonomy shared by matching,
// settlement and the gateway.
//
// Every failure the core reports is an *Error carrying a stable Kind (the
// wire "code") and, where applicable, a ReasonCode for audit aggregation.
// Infrastructure failures that reach the boundary unclassified are reported
// as KindInternal.
package swaperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes errors. The string value is the wire code.
type Kind string

const (
	// KindValidation: malformed or incomplete request, rejected before any mutation.
	KindValidation Kind = "validation"

	// KindNotFound: unknown proposal, cycle or intent.
	KindNotFound Kind = "not_found"

	// KindConflict: idempotency payload mismatch, concurrent accept, deposit ref conflict.
	KindConflict Kind = "conflict"

	// KindPrecondition: the record exists but is not in a state that allows the operation.
	KindPrecondition Kind = "precondition_failed"

	// KindExpired: a deadline elapsed.
	KindExpired Kind = "expired"

	// KindForbidden: the policy evaluator denied the caller.
	KindForbidden Kind = "forbidden"

	// KindInternal: unexpected failure; persisted state is unchanged.
	KindInternal Kind = "internal"
)

// Reason codes.
const (
	ReasonInvalidPayload      = "invalid_payload"
	ReasonIdempotencyReused   = "idempotency_key_reused"
	ReasonProposalNotFound    = "proposal_not_found"
	ReasonProposalExpired     = "proposal_expired"
	ReasonProposalSuperseded  = "proposal_superseded"
	ReasonAlreadyAccepted     = "proposal_already_accepted"
	ReasonReservationLost     = "reservation_lost"
	ReasonCommitNotFound      = "commit_not_found"
	ReasonCommitNotAccepted   = "commit_not_accepted"
	ReasonTimelineNotFound    = "timeline_not_found"
	ReasonTimelineTerminal    = "timeline_terminal"
	ReasonReceiptNotFound     = "receipt_not_found"
	ReasonInvalidTransition   = "invalid_transition"
	ReasonLegNotFound         = "leg_not_found"
	ReasonDepositRefConflict  = "deposit_ref_conflict"
	ReasonDepositWindowClosed = "deposit_window_elapsed"
	ReasonLegsOutstanding     = "legs_outstanding"
	ReasonDeadlineNotReached  = "deadline_not_reached"
	ReasonAllLegsDeposited    = "all_legs_deposited"
	ReasonIntentNotFound      = "intent_not_found"
	ReasonIntentNotActive     = "intent_not_active"
	ReasonIntentExists        = "intent_exists"
	ReasonPolicyDenied        = "policy_denied"
	ReasonUnknownOperation    = "unknown_operation"
	ReasonLockUnavailable     = "lock_unavailable"
	ReasonSignatureInvalid    = "signature_invalid"
)

// Error is the structured error returned by every core operation.
type Error struct {
	// Kind is the stable error code.
	Kind Kind

	// ReasonCode refines Kind for audit trails (may be empty).
	ReasonCode string

	// Message is a human-readable description.
	Message string

	// Details contains additional context, rendered under details.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.ReasonCode != "" {
		b.WriteString("/")
		b.WriteString(e.ReasonCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns e with one more detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// Wire returns the error as {code, message, details:{reason_code,...}}.
func (e *Error) Wire() map[string]any {
	details := map[string]string{}
	for k, v := range e.Details {
		details[k] = v
	}
	if e.ReasonCode != "" {
		details["reason_code"] = e.ReasonCode
	}
	return map[string]any{
		"code":    string(e.Kind),
		"message": e.Message,
		"details": details,
	}
}

func newError(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, ReasonCode: reason, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(reason, format string, args ...any) *Error {
	return newError(KindValidation, reason, format, args...)
}

// NotFound creates a not-found error.
func NotFound(reason, format string, args ...any) *Error {
	return newError(KindNotFound, reason, format, args...)
}

// Conflict creates a conflict error.
func Conflict(reason, format string, args ...any) *Error {
	return newError(KindConflict, reason, format, args...)
}

// Precondition creates a precondition-failed error.
func Precondition(reason, format string, args ...any) *Error {
	return newError(KindPrecondition, reason, format, args...)
}

// Expired creates an expired error.
func Expired(reason, format string, args ...any) *Error {
	return newError(KindExpired, reason, format, args...)
}

// Forbidden creates a policy denial.
func Forbidden(reason, format string, args ...any) *Error {
	return newError(KindForbidden, reason, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	e := newError(KindInternal, "", format, args...)
	e.Err = err
	return e
}

// From converts any error into an *Error. Errors that are already
// structured (possibly wrapped) are returned as is; everything else
// becomes KindInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Internal(err, "internal error")
}

// KindOf returns the Kind of err, or KindInternal for unstructured errors.
// Returns "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// ReasonOf returns the reason code of err, or "" if none.
func ReasonOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.ReasonCode
	}
	return ""
}

// IsKind reports whether err is a structured error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool { return IsKind(err, KindPrecondition) }

// Recordable reports whether an error outcome may be stored under an
// idempotency key. Internal errors are transient and never recorded.
func Recordable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind != KindInternal
}
