// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/utils/wrappers"
)

var _ Message = (*Signature)(nil)

// Signature carries one validator's signature for one input of a proposed
// anchoring transaction.
type Signature struct {
	message

	Validator uint32 `serialize:"true" json:"validator"`
	Input     uint32 `serialize:"true" json:"input"`
	// Tx is the unsigned proposal.
	Tx        []byte `serialize:"true" json:"tx"`
	Signature []byte `serialize:"true" json:"signature"`
}

// NewSignature creates a new initialized Signature.
func NewSignature(validator, input uint32, proposal *btc.Tx, sig []byte) (*Signature, error) {
	msg := &Signature{
		Validator: validator,
		Input:     input,
		Tx:        proposal.Bytes(),
		Signature: sig,
	}
	return msg, Initialize(msg)
}

// ParseSignature parses bytes into an initialized Signature.
func ParseSignature(b []byte) (*Signature, error) {
	msgIntf, err := Parse(b)
	if err != nil {
		return nil, err
	}
	msg, ok := msgIntf.(*Signature)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrWrongType, msgIntf)
	}
	return msg, nil
}

func (*Signature) Kind() anchoring.MessageKind {
	return anchoring.SignatureMessage
}

func (s *Signature) Visit(v Visitor) error {
	return v.Signature(s)
}

// Proposal decodes the signed transaction.
func (s *Signature) Proposal() (*btc.Tx, error) {
	return btc.ParseTx(s.Tx)
}

// SlotKey returns txid | validator | input, the key under which at most one
// signature is accepted.
func SlotKey(txID btc.TxID, validator, input uint32) []byte {
	key := make([]byte, len(txID)+2*wrappers.IntLen)
	copy(key, txID[:])
	binary.BigEndian.PutUint32(key[len(txID):], validator)
	binary.BigEndian.PutUint32(key[len(txID)+wrappers.IntLen:], input)
	return key
}
