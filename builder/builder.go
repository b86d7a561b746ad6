// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package builder decides which anchoring transaction comes next and
// constructs it. Construction is deterministic: every validator that sees
// the same ledger state builds byte-identical unsigned transactions.
package builder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/luxfi/ids"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"

	safemath "github.com/luxfi/anchoring/utils/math"
)

const (
	txVersion = 2

	// dustLimit is the smallest standard value of a P2WSH output.
	dustLimit = 330
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds to pay the anchoring fee")
	ErrLectNotSpendable  = errors.New("lect has no output locked to a known anchoring address")
)

// Kind of an anchoring transaction.
type Kind uint8

const (
	// Periodic anchors a new checkpoint to the actual address.
	Periodic Kind = iota
	// Transition moves the funds to the address of a new validator set
	// without advancing the checkpoint.
	Transition
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "Periodic"
	case Transition:
		return "Transition"
	default:
		return "Unknown"
	}
}

// State is everything the next transaction depends on.
type State struct {
	// Height is the last committed ledger height.
	Height uint64
	// AnchoringHash is the hash of the block at Actual.AnchoringHeight(Height).
	AnchoringHash ids.ID

	Actual    *config.AnchoringConfig
	Previous  *config.AnchoringConfig
	Following *config.AnchoringConfig

	// Lect is the agreed latest anchoring transaction, or nil while the
	// validators disagree.
	Lect *btc.Tx
	// FundingSpent is set once an agreed lect consumed the funding output
	// of the actual configuration.
	FundingSpent bool
}

// Proposal is an unsigned anchoring transaction.
type Proposal struct {
	Kind Kind
	Tx   *btc.Tx
	// PrevOuts are the outputs spent by Tx, in input order.
	PrevOuts btc.PrevOuts
	// Config is the configuration whose validators sign the proposal.
	Config *config.AnchoringConfig
}

type input struct {
	outpoint wire.OutPoint
	out      *wire.TxOut
}

// Build returns the next anchoring transaction, or nil if there is nothing
// to anchor: no lect is agreed, the actual anchoring point is already
// anchored, or funds moved to a following address that is not actual yet.
func Build(s *State) (*Proposal, error) {
	if s.Lect == nil {
		return nil, nil
	}

	target := s.Actual
	if s.Following != nil {
		target = s.Following
	}
	targetScript, err := target.PkScript()
	if err != nil {
		return nil, err
	}

	spending, lectInput, err := spendingConfig(s)
	if err != nil {
		return nil, err
	}
	spendingScript, err := spending.PkScript()
	if err != nil {
		return nil, err
	}

	switch {
	case !bytes.Equal(spendingScript, targetScript):
		return buildTransition(s, spending, target, lectInput)
	case spending != s.Actual:
		// The transition is done. Anchoring resumes once the new
		// configuration is actual.
		return nil, nil
	default:
		return buildPeriodic(s, lectInput)
	}
}

// spendingConfig finds the configuration whose address holds the lect
// output. The actual configuration takes precedence when addresses
// coincide.
func spendingConfig(s *State) (*config.AnchoringConfig, input, error) {
	for _, cfg := range []*config.AnchoringConfig{s.Actual, s.Previous, s.Following} {
		if cfg == nil {
			continue
		}
		pkScript, err := cfg.PkScript()
		if err != nil {
			return nil, input{}, err
		}
		if outpoint, out, ok := s.Lect.OutputTo(pkScript); ok {
			return cfg, input{outpoint: outpoint, out: out}, nil
		}
	}
	return nil, input{}, fmt.Errorf("%w: %s", ErrLectNotSpendable, s.Lect.ID())
}

func buildTransition(s *State, spending, target *config.AnchoringConfig, lect input) (*Proposal, error) {
	var payload *btc.Payload
	if p, ok := s.Lect.Payload(); ok {
		payload = p
	}
	tx, err := assemble([]input{lect}, payload, spending, target)
	if err != nil {
		return nil, err
	}
	return &Proposal{
		Kind:     Transition,
		Tx:       tx,
		PrevOuts: btc.PrevOuts{lect.out},
		Config:   spending,
	}, nil
}

func buildPeriodic(s *State, lect input) (*Proposal, error) {
	anchoringHeight := s.Actual.AnchoringHeight(s.Height)
	if p, ok := s.Lect.Payload(); ok && p.Height >= anchoringHeight {
		return nil, nil
	}

	inputs := []input{lect}
	funding := s.Actual.FundingTx
	if funding != nil && !s.FundingSpent && funding.ID() != s.Lect.ID() {
		outpoint, out, err := s.Actual.FundingOutput()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input{outpoint: outpoint, out: out})
	}

	payload := &btc.Payload{
		Height:    anchoringHeight,
		BlockHash: s.AnchoringHash,
	}
	tx, err := assemble(inputs, payload, s.Actual, s.Actual)
	if err != nil {
		return nil, err
	}
	prevOuts := make(btc.PrevOuts, len(inputs))
	for i, in := range inputs {
		prevOuts[i] = in.out
	}
	return &Proposal{
		Kind:     Periodic,
		Tx:       tx,
		PrevOuts: prevOuts,
		Config:   s.Actual,
	}, nil
}

// assemble spends inputs, locked to the spending address, into a single
// output to the target address followed by the optional payload. The fee
// follows the target configuration's rate.
func assemble(inputs []input, payload *btc.Payload, spending, target *config.AnchoringConfig) (*btc.Tx, error) {
	targetScript, err := target.PkScript()
	if err != nil {
		return nil, err
	}
	redeemScript, err := spending.RedeemScript()
	if err != nil {
		return nil, err
	}

	msg := wire.NewMsgTx(txVersion)
	values := make([]uint64, len(inputs))
	for i, in := range inputs {
		msg.AddTxIn(wire.NewTxIn(&in.outpoint, nil, nil))
		values[i] = uint64(in.out.Value)
	}
	msg.AddTxOut(wire.NewTxOut(0, targetScript))
	if payload != nil {
		payloadScript, err := payload.Script()
		if err != nil {
			return nil, err
		}
		msg.AddTxOut(wire.NewTxOut(0, payloadScript))
	}

	unsigned, err := btc.NewTx(msg)
	if err != nil {
		return nil, err
	}
	vsize := btc.EstimateVirtualSize(unsigned, redeemScript, spending.Threshold())
	fee, err := safemath.Mul(vsize, target.TransactionFee)
	if err != nil {
		return nil, err
	}
	total, err := safemath.Sum(values...)
	if err != nil {
		return nil, err
	}
	change, err := safemath.Sub(total, fee)
	if err != nil || change < dustLimit {
		return nil, fmt.Errorf("%w: inputs %d, fee %d", ErrInsufficientFunds, total, fee)
	}
	msg.TxOut[0].Value = int64(change)
	return btc.NewTx(msg)
}
