// Package journal appends domain events to the store and relays them to
// external sinks.
//
// The events table is both the audit journal and the outbox: events are
// written in the same transaction as the state change they describe, and a
// Relay later delivers unrelayed rows to a Sink and stamps relayed_at.
// Delivery is at-least-once; sinks deduplicate by event_id.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// NewEvent builds an event whose id is derived from (type, subject,
// discriminator). The discriminator names the transition, e.g. the target
// state, so replaying a transition reproduces the same id.
func NewEvent(eventType, subject, discriminator string, payload any, at time.Time) (ir.Event, error) {
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("event %s payload: %w", eventType, err)
	}
	return ir.Event{
		EventID:    ir.EventID(eventType, subject, discriminator),
		Type:       eventType,
		Subject:    subject,
		Payload:    data,
		OccurredAt: at,
	}, nil
}

// Append builds an event and writes it in tx. Returns false when the same
// event was already journaled.
func Append(ctx context.Context, tx *store.Tx, eventType, subject, discriminator string, payload any, at time.Time) (bool, error) {
	ev, err := NewEvent(eventType, subject, discriminator, payload, at)
	if err != nil {
		return false, err
	}
	return tx.AppendEvent(ctx, ev)
}
