// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signing tracks signatures collected for a proposed anchoring
// transaction and assembles the transaction once every input has enough of
// them.
package signing

import (
	"errors"
	"fmt"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/txs"
)

var ErrIncomplete = errors.New("proposal is not fully signed")

// Status of a proposal. It is derived from the stored signatures every time
// it is needed and never persisted.
type Status uint8

const (
	Proposed Status = iota
	PartiallySigned
	Complete
)

func (s Status) String() string {
	switch s {
	case Proposed:
		return "Proposed"
	case PartiallySigned:
		return "PartiallySigned"
	case Complete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Collection holds the signatures of one proposal, indexed by input and
// validator.
type Collection struct {
	tx     *btc.Tx
	config *config.AnchoringConfig
	// slots[input][validator] is nil until signed.
	slots [][][]byte
	count int
}

// NewCollection indexes sigs against a proposal signed by the validators of
// cfg. Signatures for other transactions or out of range slots are ignored
// and the first signature for a slot wins.
func NewCollection(tx *btc.Tx, cfg *config.AnchoringConfig, sigs []*txs.Signature) *Collection {
	c := &Collection{
		tx:     tx,
		config: cfg,
		slots:  make([][][]byte, tx.NumInputs()),
	}
	for i := range c.slots {
		c.slots[i] = make([][]byte, len(cfg.Validators))
	}
	txID := tx.ID()
	for _, sig := range sigs {
		proposal, err := sig.Proposal()
		if err != nil || proposal.ID() != txID {
			continue
		}
		if int(sig.Input) >= len(c.slots) || int(sig.Validator) >= len(cfg.Validators) {
			continue
		}
		if c.slots[sig.Input][sig.Validator] != nil {
			continue
		}
		c.slots[sig.Input][sig.Validator] = sig.Signature
		c.count++
	}
	return c
}

// Signed reports whether validator signed input.
func (c *Collection) Signed(input int, validator uint32) bool {
	if input < 0 || input >= len(c.slots) || int(validator) >= len(c.config.Validators) {
		return false
	}
	return c.slots[input][validator] != nil
}

// Status derives the state of the proposal.
func (c *Collection) Status() Status {
	if c.count == 0 {
		return Proposed
	}
	threshold := c.config.Threshold()
	for input := range c.slots {
		if c.signers(input) < threshold {
			return PartiallySigned
		}
	}
	return Complete
}

func (c *Collection) signers(input int) int {
	var n int
	for _, sig := range c.slots[input] {
		if sig != nil {
			n++
		}
	}
	return n
}

// Select returns the signatures used to spend input: the threshold
// signatures of the lowest validator indices, in index order. That is also
// the order OP_CHECKMULTISIG expects.
func (c *Collection) Select(input int) ([][]byte, error) {
	threshold := c.config.Threshold()
	selected := make([][]byte, 0, threshold)
	for _, sig := range c.slots[input] {
		if sig == nil {
			continue
		}
		selected = append(selected, sig)
		if len(selected) == threshold {
			return selected, nil
		}
	}
	return nil, fmt.Errorf("%w: input %d has %d of %d signatures", ErrIncomplete, input, len(selected), threshold)
}

// Assemble returns the fully signed transaction.
func (c *Collection) Assemble() (*btc.Tx, error) {
	script, err := c.config.RedeemScript()
	if err != nil {
		return nil, err
	}
	sigs := make([][][]byte, len(c.slots))
	for input := range c.slots {
		sigs[input], err = c.Select(input)
		if err != nil {
			return nil, err
		}
	}
	return btc.Finalize(c.tx, script, c.config.Threshold(), sigs)
}
