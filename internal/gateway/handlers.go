package gateway

import (
	"context"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/matching"
)

type submitPayload struct {
	ID   string      `json:"id"`
	Give []ir.Asset  `json:"give"`
	Want ir.WantSpec `json:"want"`
}

type cancelPayload struct {
	IntentID string `json:"intent_id"`
}

type runPayload struct {
	Bounds ir.Bounds `json:"bounds"`
}

type acceptPayload struct {
	ProposalID string `json:"proposal_id"`
}

type cyclePayload struct {
	CycleID string `json:"cycle_id"`
}

type depositPayload struct {
	CycleID    string `json:"cycle_id"`
	IntentID   string `json:"intent_id"`
	DepositRef string `json:"deposit_ref"`
}

type failPayload struct {
	CycleID    string `json:"cycle_id"`
	ReasonCode string `json:"reason_code"`
}

func (g *Gateway) submitIntent(ctx context.Context, c call) (any, error) {
	p, err := decode[submitPayload](c)
	if err != nil {
		return nil, err
	}
	return g.intents.Submit(ctx, intents.SubmitRequest{
		Actor:          c.env.Actor,
		IdempotencyKey: c.env.IdempotencyKey,
		ID:             p.ID,
		Give:           p.Give,
		Want:           p.Want,
		OccurredAt:     c.at,
	})
}

func (g *Gateway) cancelIntent(ctx context.Context, c call) (any, error) {
	p, err := decode[cancelPayload](c)
	if err != nil {
		return nil, err
	}
	return g.intents.Cancel(ctx, intents.CancelRequest{
		Actor:          c.env.Actor,
		IdempotencyKey: c.env.IdempotencyKey,
		IntentID:       p.IntentID,
		OccurredAt:     c.at,
	})
}

func (g *Gateway) runMatching(ctx context.Context, c call) (any, error) {
	p, err := decode[runPayload](c)
	if err != nil {
		return nil, err
	}
	b := p.Bounds
	if b.MaxCycleLength == 0 {
		b.MaxCycleLength = g.bounds.MaxCycleLength
	}
	if b.MaxCandidates == 0 {
		b.MaxCandidates = g.bounds.MaxCandidates
	}
	if b.TimeoutMS == 0 {
		b.TimeoutMS = g.bounds.TimeoutMS
	}
	return g.matching.Run(ctx, matching.RunRequest{
		Actor:          c.env.Actor,
		IdempotencyKey: c.env.IdempotencyKey,
		Bounds:         b,
		OccurredAt:     c.at,
	})
}

func (g *Gateway) accept(ctx context.Context, c call) (any, error) {
	p, err := decode[acceptPayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.Accept(ctx, c.request(), p.ProposalID)
}

func (g *Gateway) start(ctx context.Context, c call) (any, error) {
	p, err := decode[cyclePayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.Start(ctx, c.request(), p.CycleID)
}

func (g *Gateway) deposit(ctx context.Context, c call) (any, error) {
	p, err := decode[depositPayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.ConfirmDeposit(ctx, c.request(), p.CycleID, p.IntentID, p.DepositRef)
}

func (g *Gateway) beginExecution(ctx context.Context, c call) (any, error) {
	p, err := decode[cyclePayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.BeginExecution(ctx, c.request(), p.CycleID)
}

func (g *Gateway) complete(ctx context.Context, c call) (any, error) {
	p, err := decode[cyclePayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.Complete(ctx, c.request(), p.CycleID)
}

func (g *Gateway) expire(ctx context.Context, c call) (any, error) {
	p, err := decode[cyclePayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.ExpireDepositWindow(ctx, c.request(), p.CycleID)
}

func (g *Gateway) fail(ctx context.Context, c call) (any, error) {
	p, err := decode[failPayload](c)
	if err != nil {
		return nil, err
	}
	return g.settlement.Fail(ctx, c.request(), p.CycleID, p.ReasonCode)
}
