// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"github.com/luxfi/anchoring/schema"
)

// Gather reads the State the next transaction depends on.
func Gather(s *schema.Schema) (*State, error) {
	actual, err := s.ActualConfig()
	if err != nil {
		return nil, err
	}
	previous, err := s.PreviousConfig()
	if err != nil {
		return nil, err
	}
	following, err := s.FollowingConfig()
	if err != nil {
		return nil, err
	}
	height, err := s.Ledger().Height()
	if err != nil {
		return nil, err
	}
	anchoringHash, err := s.Ledger().BlockHash(actual.AnchoringHeight(height))
	if err != nil {
		return nil, err
	}
	lect, err := s.CollectLects(actual)
	if err != nil {
		return nil, err
	}

	state := &State{
		Height:        height,
		AnchoringHash: anchoringHash,
		Actual:        actual,
		Previous:      previous,
		Following:     following,
		Lect:          lect,
	}
	if actual.FundingTx != nil {
		outpoint, _, err := actual.FundingOutput()
		if err != nil {
			return nil, err
		}
		state.FundingSpent, err = s.IsSpent(outpoint)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Next builds the next anchoring transaction from the schema, or returns
// nil if there is nothing to anchor.
func Next(s *schema.Schema) (*Proposal, error) {
	state, err := Gather(s)
	if err != nil {
		return nil, err
	}
	return Build(state)
}
