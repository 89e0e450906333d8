package settlement

import (
	"context"
	"errors"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// Timeline returns the settlement state of a cycle.
func (s *Service) Timeline(ctx context.Context, cycleID string) (ir.SettlementTimeline, error) {
	var tl ir.SettlementTimeline
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		tl, err = loadTimeline(ctx, tx, cycleID)
		return err
	})
	return tl, err
}

// Commit returns the acceptance record of a cycle.
func (s *Service) Commit(ctx context.Context, cycleID string) (ir.Commit, error) {
	var c ir.Commit
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		c, err = tx.GetCommit(ctx, cycleID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ir.Commit{}, swaperr.NotFound(swaperr.ReasonCommitNotFound, "no commit for cycle %s", cycleID)
	}
	return c, err
}

// Receipt returns the terminal receipt of a cycle.
func (s *Service) Receipt(ctx context.Context, cycleID string) (ir.SwapReceipt, error) {
	var r ir.SwapReceipt
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		r, err = tx.GetReceipt(ctx, cycleID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ir.SwapReceipt{}, swaperr.NotFound(swaperr.ReasonReceiptNotFound, "no receipt for cycle %s", cycleID)
	}
	return r, err
}

// Proposal returns one proposal.
func (s *Service) Proposal(ctx context.Context, id string) (ir.CycleProposal, error) {
	var p ir.CycleProposal
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.GetProposal(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ir.CycleProposal{}, swaperr.NotFound(swaperr.ReasonProposalNotFound, "proposal %s not found", id)
	}
	return p, err
}

// Proposals lists proposals in a status ordered by id; empty lists all.
func (s *Service) Proposals(ctx context.Context, status ir.ProposalStatus) ([]ir.CycleProposal, error) {
	var out []ir.CycleProposal
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListProposals(ctx, status)
		return err
	})
	return out, err
}
