package testutil

import (
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
)

// Epoch is the fixed start time used by tests and scenarios.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// NewClock returns a manual clock at Epoch.
func NewClock() *clock.Manual {
	return clock.NewManual(Epoch)
}
