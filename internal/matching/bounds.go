package matching

import (
	"strconv"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// Bounds defaults and limits.
const (
	DefaultMaxCycleLength = 6
	DefaultMaxCandidates  = 1000
	DefaultTimeoutMS      = 2000

	MinCycleLength = 2
	MaxCycleLength = 8
)

// NormalizeBounds fills zero fields with defaults and rejects values
// outside the supported range.
func NormalizeBounds(b ir.Bounds) (ir.Bounds, error) {
	if b.MaxCycleLength == 0 {
		b.MaxCycleLength = DefaultMaxCycleLength
	}
	if b.MaxCandidates == 0 {
		b.MaxCandidates = DefaultMaxCandidates
	}
	if b.TimeoutMS == 0 {
		b.TimeoutMS = DefaultTimeoutMS
	}
	if b.MaxCycleLength < MinCycleLength || b.MaxCycleLength > MaxCycleLength {
		return ir.Bounds{}, swaperr.Validation(swaperr.ReasonInvalidPayload,
			"max_cycle_length must be between %d and %d", MinCycleLength, MaxCycleLength).
			WithDetail("max_cycle_length", strconv.Itoa(b.MaxCycleLength))
	}
	if b.MaxCandidates < 0 {
		return ir.Bounds{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "max_candidates must be positive")
	}
	if b.TimeoutMS < 0 {
		return ir.Bounds{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "timeout_ms must be positive")
	}
	return b, nil
}
