// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/golang-lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/metrics"
	"github.com/luxfi/anchoring/schema"
	"github.com/luxfi/anchoring/txs"
)

const verifiedCacheSize = 4096

var (
	ErrMalformedMessage = errors.New("malformed anchoring message")
	ErrUnknownValidator = errors.New("unknown validator")
	ErrUnknownInput     = errors.New("proposal spends an unknown output")
	ErrUnknownAddress   = errors.New("transaction does not pay to a known anchoring address")
	ErrStaleLect        = errors.New("lect was reported against an outdated log")

	_ txs.Visitor = (*messageExecutor)(nil)
)

// Backend holds the dependencies shared by every executed message.
type Backend struct {
	Log     log.Logger
	Metrics metrics.Metrics

	// verified caches the ids of signature messages whose signature has
	// already been checked.
	verified *lru.Cache
}

// Executor applies anchoring messages to a database view. It is
// deterministic: every validator applying the same messages to the same
// view writes the same state.
type Executor struct {
	backend *Backend
}

func NewExecutor(log log.Logger, metrics metrics.Metrics) (*Executor, error) {
	verified, err := lru.New(verifiedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Executor{
		backend: &Backend{
			Log:      log,
			Metrics:  metrics,
			verified: verified,
		},
	}, nil
}

// Genesis initializes the anchoring tables for the genesis configuration.
func (e *Executor) Genesis(s *schema.Schema, cfg *config.AnchoringConfig) error {
	return s.CreateGenesisConfig(cfg)
}

// Execute applies msg. On error, the caller must discard the writes made to
// the view.
func (e *Executor) Execute(s *schema.Schema, msg txs.Message) error {
	err := msg.Visit(&messageExecutor{
		Backend: e.backend,
		Schema:  s,
		ID:      msg.ID(),
	})
	if err != nil {
		e.backend.Log.Debug("rejected anchoring message",
			log.Stringer("kind", msg.Kind()),
			log.Stringer("messageID", msg.ID()),
			log.Err(err),
		)
		if err := e.backend.Metrics.MarkRejected(msg); err != nil {
			return err
		}
	}
	return err
}

type messageExecutor struct {
	*Backend
	Schema *schema.Schema
	ID     ids.ID
}

func (e *messageExecutor) Signature(msg *txs.Signature) error {
	proposal, err := msg.Proposal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if int(msg.Input) >= proposal.NumInputs() {
		return fmt.Errorf("%w: %d", btc.ErrInputOutOfRange, msg.Input)
	}
	configs, err := e.configs()
	if err != nil {
		return err
	}
	if err := e.registerAddresses(configs); err != nil {
		return err
	}
	prevOuts, err := e.prevOuts(proposal, configs)
	if err != nil {
		return err
	}
	cfg, err := signingConfig(configs, prevOuts[msg.Input].PkScript)
	if err != nil {
		return err
	}
	if int(msg.Validator) >= len(cfg.Validators) {
		return fmt.Errorf("%w: index %d", ErrUnknownValidator, msg.Validator)
	}

	if _, ok := e.verified.Get(e.ID); !ok {
		script, err := cfg.RedeemScript()
		if err != nil {
			return err
		}
		key := cfg.Validators[msg.Validator]
		if err := btc.VerifyInput(proposal, prevOuts, int(msg.Input), script, key, msg.Signature); err != nil {
			return err
		}
		e.verified.Add(e.ID, struct{}{})
	}

	stored, err := e.Schema.AddKnownSignature(msg)
	if err != nil {
		return err
	}
	if !stored {
		return e.Metrics.MarkDuplicate(msg)
	}
	return e.Metrics.MarkAccepted(msg)
}

func (e *messageExecutor) Lect(msg *txs.Lect) error {
	actual, err := e.Schema.ActualConfig()
	if err != nil {
		return err
	}
	if int(msg.Validator) >= len(actual.Validators) {
		return fmt.Errorf("%w: index %d", ErrUnknownValidator, msg.Validator)
	}
	validator := actual.Validators[msg.Validator]

	tx, err := msg.Transaction()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	count, err := e.Schema.LectsLen(validator)
	if err != nil {
		return err
	}
	if msg.Count != count {
		return fmt.Errorf("%w: reported at %d, log has %d entries", ErrStaleLect, msg.Count, count)
	}
	current, err := e.Schema.Lect(validator)
	if err != nil {
		return err
	}
	if current != nil && current.Equal(tx) {
		e.Log.Warn("dropping duplicate lect",
			log.Uint32("validator", msg.Validator),
			log.Stringer("txID", tx.ID()),
		)
		return e.Metrics.MarkDuplicate(msg)
	}

	configs, err := e.configs()
	if err != nil {
		return err
	}
	if err := e.registerAddresses(configs); err != nil {
		return err
	}
	known, err := e.paysToKnownAddress(tx, actual)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, tx.ID())
	}
	if err := e.Schema.AddLect(validator, tx, e.ID); err != nil {
		return err
	}

	lect, err := e.Schema.CollectLects(actual)
	if err != nil {
		return err
	}
	if lect != nil && lect.Equal(tx) {
		if err := e.Schema.MarkSpent(tx); err != nil {
			return err
		}
		if payload, ok := tx.Payload(); ok {
			e.Metrics.SetAnchoredHeight(payload.Height)
		}
		e.Log.Info("anchoring transaction reached lect majority",
			log.Stringer("txID", tx.ID()),
		)
	}
	return e.Metrics.MarkAccepted(msg)
}

// configs returns the actual configuration followed by the previous and the
// following ones, when they exist.
func (e *messageExecutor) configs() ([]*config.AnchoringConfig, error) {
	actual, err := e.Schema.ActualConfig()
	if err != nil {
		return nil, err
	}
	configs := []*config.AnchoringConfig{actual}
	previous, err := e.Schema.PreviousConfig()
	if err != nil {
		return nil, err
	}
	if previous != nil {
		configs = append(configs, previous)
	}
	following, err := e.Schema.FollowingConfig()
	if err != nil {
		return nil, err
	}
	if following != nil {
		configs = append(configs, following)
	}
	return configs, nil
}

func (e *messageExecutor) registerAddresses(configs []*config.AnchoringConfig) error {
	for _, cfg := range configs {
		addr, err := cfg.Address()
		if err != nil {
			return err
		}
		if err := e.Schema.AddKnownAddress(addr); err != nil {
			return err
		}
	}
	return nil
}

// prevOuts resolves the outputs spent by proposal. Only outputs of reported
// lects and of funding transactions can be anchoring inputs.
func (e *messageExecutor) prevOuts(proposal *btc.Tx, configs []*config.AnchoringConfig) (btc.PrevOuts, error) {
	inputs := proposal.Inputs()
	prevOuts := make(btc.PrevOuts, len(inputs))
	for i, outpoint := range inputs {
		tx, err := e.Schema.KnownTx(outpoint.Hash)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			tx = fundingTx(configs, outpoint.Hash)
		}
		out, ok := output(tx, outpoint)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInput, outpoint)
		}
		prevOuts[i] = out
	}
	return prevOuts, nil
}

func (e *messageExecutor) paysToKnownAddress(tx *btc.Tx, cfg *config.AnchoringConfig) (bool, error) {
	for _, out := range tx.Outputs() {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, cfg.Params())
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			known, err := e.Schema.IsAddressKnown(addr.EncodeAddress())
			if err != nil || known {
				return known, err
			}
		}
	}
	return false, nil
}

// signingConfig returns the first configuration locking pkScript.
func signingConfig(configs []*config.AnchoringConfig, pkScript []byte) (*config.AnchoringConfig, error) {
	for _, cfg := range configs {
		script, err := cfg.PkScript()
		if err != nil {
			return nil, err
		}
		if bytes.Equal(script, pkScript) {
			return cfg, nil
		}
	}
	return nil, ErrUnknownAddress
}

func fundingTx(configs []*config.AnchoringConfig, txID btc.TxID) *btc.Tx {
	for _, cfg := range configs {
		if cfg.FundingTx != nil && cfg.FundingTx.ID() == txID {
			return cfg.FundingTx
		}
	}
	return nil
}

func output(tx *btc.Tx, outpoint wire.OutPoint) (*wire.TxOut, bool) {
	if tx == nil {
		return nil, false
	}
	outputs := tx.Outputs()
	if int(outpoint.Index) >= len(outputs) {
		return nil, false
	}
	return outputs[outpoint.Index], true
}
