// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"fmt"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
)

var _ Message = (*Lect)(nil)

// Lect reports the latest anchoring transaction a validator observed on
// Bitcoin.
type Lect struct {
	message

	Validator uint32 `serialize:"true" json:"validator"`
	Tx        []byte `serialize:"true" json:"tx"`
	// Count is the length of the validator's lect log when the report was
	// made. Reports built against an outdated log are rejected.
	Count uint64 `serialize:"true" json:"count"`
}

// NewLect creates a new initialized Lect.
func NewLect(validator uint32, tx *btc.Tx, count uint64) (*Lect, error) {
	msg := &Lect{
		Validator: validator,
		Tx:        tx.Bytes(),
		Count:     count,
	}
	return msg, Initialize(msg)
}

// ParseLect parses bytes into an initialized Lect.
func ParseLect(b []byte) (*Lect, error) {
	msgIntf, err := Parse(b)
	if err != nil {
		return nil, err
	}
	msg, ok := msgIntf.(*Lect)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrWrongType, msgIntf)
	}
	return msg, nil
}

func (*Lect) Kind() anchoring.MessageKind {
	return anchoring.LectMessage
}

func (l *Lect) Visit(v Visitor) error {
	return v.Lect(l)
}

// Transaction decodes the reported transaction.
func (l *Lect) Transaction() (*btc.Tx, error) {
	return btc.ParseTx(l.Tx)
}
