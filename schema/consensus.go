// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"fmt"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
)

// CollectLects returns the transaction that at least a majority of the
// validators of cfg report as their latest lect, or nil if no content has a
// majority yet. It never writes.
func (s *Schema) CollectLects(cfg *config.AnchoringConfig) (*btc.Tx, error) {
	var (
		counts   = make(map[string]int, len(cfg.Validators))
		contents = make(map[string]*btc.Tx, len(cfg.Validators))
	)
	for _, validator := range cfg.Validators {
		lect, err := s.Lect(validator)
		if err != nil {
			return nil, err
		}
		if lect == nil {
			continue
		}
		key := string(lect.Bytes())
		counts[key]++
		contents[key] = lect
	}

	var (
		threshold = cfg.Threshold()
		winner    *btc.Tx
	)
	for key, count := range counts {
		if count < threshold {
			continue
		}
		if winner != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrConflictingLects, winner.ID(), contents[key].ID())
		}
		winner = contents[key]
	}
	return winner, nil
}
