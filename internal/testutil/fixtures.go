// Package testutil holds shared fixtures for SwapGraph tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// OpenStore opens a store in a temp dir and closes it at cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "swapgraph.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Asset builds an asset with an integer value.
func Asset(id, class string, value int64) ir.Asset {
	return ir.Asset{ID: id, Class: class, Value: decimal.NewFromInt(value)}
}

// Intent builds an active intent giving one asset and wanting specific
// asset ids with no minimum value.
//
//	Intent("a", "alice", Asset("card-a", "card", 10), "card-b")
func Intent(id, actor string, give ir.Asset, wantIDs ...string) ir.SwapIntent {
	return ir.SwapIntent{
		ID:        id,
		Actor:     actor,
		Give:      []ir.Asset{give},
		Want:      ir.WantSpec{AssetIDs: wantIDs, MinValue: decimal.Zero},
		Status:    ir.IntentActive,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// Ring builds n intents i0..i(n-1) owned by actors a0..a(n-1), each giving
// one asset worth value and wanting the previous intent's asset, so the
// only cycle runs i0 -> i1 -> ... -> i0.
func Ring(prefix string, n int, value int64) []ir.SwapIntent {
	out := make([]ir.SwapIntent, n)
	for i := 0; i < n; i++ {
		prev := (i + n - 1) % n
		out[i] = Intent(
			prefix+itoa(i),
			"actor-"+prefix+itoa(i),
			Asset("asset-"+prefix+itoa(i), "card", value),
			"asset-"+prefix+itoa(prev),
		)
	}
	return out
}

func itoa(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return digits[i : i+1]
	}
	return itoa(i/10) + digits[i%10:i%10+1]
}
