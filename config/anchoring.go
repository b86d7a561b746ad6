// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
)

const (
	DefaultFrequency         = 500
	DefaultTransactionFee    = 10
	DefaultUTXOConfirmations = 5
)

var (
	ErrInvalidConfig     = errors.New("invalid anchoring configuration")
	ErrInvalidValidators = errors.New("invalid validators configuration")
	ErrInvalidFrequency  = errors.New("invalid anchoring frequency")
	ErrInvalidFunding    = errors.New("funding transaction does not pay to the anchoring address")
)

// AnchoringConfig is the consensus-critical configuration shared by every
// validator. It becomes immutable once the host ledger activates it.
type AnchoringConfig struct {
	// Validators holds the anchoring keys in validator index order.
	Validators []btc.PublicKey `json:"validators"`
	Network    Network         `json:"network"`
	// FundingTx tops up the anchoring wallet. It is consumed at most once.
	FundingTx *btc.Tx `json:"funding_transaction,omitempty"`
	// Frequency is the anchoring interval in ledger blocks.
	Frequency uint64 `json:"frequency"`
	// TransactionFee is the fee rate in satoshi per virtual byte.
	TransactionFee uint64 `json:"transaction_fee"`
	// UTXOConfirmations is the depth the funding transaction must reach on
	// Bitcoin before validators sign anchoring transactions spending it.
	UTXOConfirmations uint64 `json:"utxo_confirmations"`
}

// DefaultConfig returns a config with default values and no validators.
func DefaultConfig() AnchoringConfig {
	return AnchoringConfig{
		Network:           Testnet,
		Frequency:         DefaultFrequency,
		TransactionFee:    DefaultTransactionFee,
		UTXOConfirmations: DefaultUTXOConfirmations,
	}
}

// Parse decodes and validates a JSON encoded configuration. Omitted fields
// take their default values.
func Parse(b []byte) (*AnchoringConfig, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Bytes returns the JSON encoding of the config.
func (c *AnchoringConfig) Bytes() ([]byte, error) {
	return json.Marshal(c)
}

// Validate checks the config eagerly so that a malformed config is never
// activated.
func (c *AnchoringConfig) Validate() error {
	switch n := len(c.Validators); {
	case n == 0:
		return fmt.Errorf("%w: %w: empty validator set", ErrInvalidConfig, ErrInvalidValidators)
	case n > btc.MaxMultisigKeys:
		return fmt.Errorf("%w: %w: %d validators exceeds %d", ErrInvalidConfig, ErrInvalidValidators, n, btc.MaxMultisigKeys)
	}
	seen := make(map[string]struct{}, len(c.Validators))
	for i, key := range c.Validators {
		if key.Key() == nil {
			return fmt.Errorf("%w: %w: validator %d has no key", ErrInvalidConfig, ErrInvalidValidators, i)
		}
		k := string(key.Bytes())
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: %w: duplicate key %s", ErrInvalidConfig, ErrInvalidValidators, key)
		}
		seen[k] = struct{}{}
	}
	if c.Frequency == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidFrequency)
	}
	if _, err := c.Network.Params(); err != nil {
		return err
	}
	if c.FundingTx != nil {
		if _, _, err := c.FundingOutput(); err != nil {
			return err
		}
	}
	return nil
}

// Params returns the Bitcoin chain parameters. The network was checked by
// Validate.
func (c *AnchoringConfig) Params() *chaincfg.Params {
	params, err := c.Network.Params()
	if err != nil {
		return &chaincfg.MainNetParams
	}
	return params
}

// Threshold returns the number of signatures required per input.
func (c *AnchoringConfig) Threshold() int {
	return anchoring.MajorityCount(len(c.Validators))
}

// RedeemScript returns the multisig script of the validator set.
func (c *AnchoringConfig) RedeemScript() (btc.RedeemScript, error) {
	return btc.NewRedeemScript(c.Validators, c.Threshold(), c.Params())
}

// PkScript returns the output script of the anchoring address.
func (c *AnchoringConfig) PkScript() ([]byte, error) {
	script, err := c.RedeemScript()
	if err != nil {
		return nil, err
	}
	return script.PkScript()
}

// Address returns the encoded anchoring address.
func (c *AnchoringConfig) Address() (string, error) {
	script, err := c.RedeemScript()
	if err != nil {
		return "", err
	}
	addr, err := script.Address(c.Params())
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// FundingOutput returns the output of the funding transaction that pays to
// the anchoring address.
func (c *AnchoringConfig) FundingOutput() (wire.OutPoint, *wire.TxOut, error) {
	if c.FundingTx == nil {
		return wire.OutPoint{}, nil, fmt.Errorf("%w: no funding transaction", ErrInvalidFunding)
	}
	pkScript, err := c.PkScript()
	if err != nil {
		return wire.OutPoint{}, nil, err
	}
	outpoint, out, ok := c.FundingTx.OutputTo(pkScript)
	if !ok {
		return wire.OutPoint{}, nil, fmt.Errorf("%w: %s", ErrInvalidFunding, c.FundingTx.ID())
	}
	return outpoint, out, nil
}

// ValidatorIndex returns the index of key in the validator set.
func (c *AnchoringConfig) ValidatorIndex(key btc.PublicKey) (uint32, bool) {
	for i, validator := range c.Validators {
		if validator.Equal(key) {
			return uint32(i), true
		}
	}
	return 0, false
}

// AnchoringHeight returns the latest anchoring point at or below height.
func (c *AnchoringConfig) AnchoringHeight(height uint64) uint64 {
	return height - height%c.Frequency
}

// Copy returns a deep enough copy for building a configuration change.
// Keys and transactions are immutable and shared.
func (c *AnchoringConfig) Copy() *AnchoringConfig {
	cp := *c
	cp.Validators = append([]btc.PublicKey(nil), c.Validators...)
	return &cp
}
