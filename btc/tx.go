// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package btc wraps the Bitcoin wire format with the immutable value types
// used by the anchoring service.
package btc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrMalformedTx   = errors.New("malformed bitcoin transaction")
	errTrailingBytes = errors.New("trailing bytes after transaction")
)

// TxID is the witness-less double-SHA256 hash of a transaction. Signatures are
// carried in the witness, so the id of a proposal is known before it is
// signed.
type TxID = chainhash.Hash

// Tx is an immutable Bitcoin transaction together with its serialized form.
type Tx struct {
	msg   *wire.MsgTx
	bytes []byte
	id    TxID
}

// NewTx serializes msg. Later changes to msg do not affect the returned Tx.
func NewTx(msg *wire.MsgTx) (*Tx, error) {
	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return nil, err
	}
	return &Tx{
		msg:   msg.Copy(),
		bytes: buf.Bytes(),
		id:    msg.TxHash(),
	}, nil
}

// ParseTx decodes a transaction in the Bitcoin wire format, with or without
// witness data.
func ParseTx(b []byte) (*Tx, error) {
	r := bytes.NewReader(b)
	msg := &wire.MsgTx{}
	if err := msg.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTx, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTx, errTrailingBytes)
	}
	return &Tx{
		msg:   msg,
		bytes: bytes.Clone(b),
		id:    msg.TxHash(),
	}, nil
}

// ParseTxHex decodes a hex encoded transaction.
func ParseTxHex(s string) (*Tx, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTx, err)
	}
	return ParseTx(b)
}

// ID returns the transaction id.
func (t *Tx) ID() TxID {
	return t.id
}

// Bytes returns the serialized transaction. The returned slice must not be
// modified.
func (t *Tx) Bytes() []byte {
	return t.bytes
}

// Msg returns a copy of the underlying wire transaction.
func (t *Tx) Msg() *wire.MsgTx {
	return t.msg.Copy()
}

// HasWitness reports whether any input carries witness data.
func (t *Tx) HasWitness() bool {
	return t.msg.HasWitness()
}

// Inputs returns the outpoints spent by the transaction, in input order.
func (t *Tx) Inputs() []wire.OutPoint {
	outpoints := make([]wire.OutPoint, len(t.msg.TxIn))
	for i, in := range t.msg.TxIn {
		outpoints[i] = in.PreviousOutPoint
	}
	return outpoints
}

// NumInputs returns the number of inputs.
func (t *Tx) NumInputs() int {
	return len(t.msg.TxIn)
}

// Outputs returns copies of the transaction outputs.
func (t *Tx) Outputs() []*wire.TxOut {
	outs := make([]*wire.TxOut, len(t.msg.TxOut))
	for i, out := range t.msg.TxOut {
		outs[i] = wire.NewTxOut(out.Value, bytes.Clone(out.PkScript))
	}
	return outs
}

// PrevTxID returns the transaction referenced by the first input. Anchoring
// transactions always spend the previous anchoring transaction first.
func (t *Tx) PrevTxID() (TxID, bool) {
	if len(t.msg.TxIn) == 0 {
		return TxID{}, false
	}
	return t.msg.TxIn[0].PreviousOutPoint.Hash, true
}

// OutputTo returns the first output paying to pkScript.
func (t *Tx) OutputTo(pkScript []byte) (wire.OutPoint, *wire.TxOut, bool) {
	for i, out := range t.msg.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			return *wire.NewOutPoint(&t.id, uint32(i)), wire.NewTxOut(out.Value, bytes.Clone(out.PkScript)), true
		}
	}
	return wire.OutPoint{}, nil, false
}

// Spends reports whether the transaction consumes the given outpoint.
func (t *Tx) Spends(outpoint wire.OutPoint) bool {
	for _, in := range t.msg.TxIn {
		if in.PreviousOutPoint == outpoint {
			return true
		}
	}
	return false
}

// Payload returns the anchoring checkpoint embedded in the transaction, if
// any.
func (t *Tx) Payload() (*Payload, bool) {
	for _, out := range t.msg.TxOut {
		if payload, err := ParsePayloadScript(out.PkScript); err == nil {
			return payload, true
		}
	}
	return nil, false
}

// MaxOutputValue returns the value of the largest output.
func (t *Tx) MaxOutputValue() int64 {
	var value int64
	for _, out := range t.msg.TxOut {
		value = max(value, out.Value)
	}
	return value
}

// Equal compares the serialized contents of two transactions.
func (t *Tx) Equal(o *Tx) bool {
	if t == nil || o == nil {
		return t == o
	}
	return bytes.Equal(t.bytes, o.bytes)
}

func (t *Tx) String() string {
	return hex.EncodeToString(t.bytes)
}

func (t *Tx) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tx) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTxHex(s)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}
