// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txs defines the ledger messages executed by the anchoring service.
package txs

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"

	"github.com/luxfi/anchoring"
)

var ErrWrongType = errors.New("wrong message type")

// Message is a ledger transaction understood by the anchoring service. The
// host ledger authenticates the sender; Validator fields are trusted to
// name the submitting validator.
type Message interface {
	Kind() anchoring.MessageKind
	Visit(Visitor) error

	// Bytes returns the canonical encoding of the message.
	Bytes() []byte
	// ID returns the hash of Bytes.
	ID() ids.ID

	initialize(bytes []byte)
}

type message struct {
	bytes []byte
	id    ids.ID
}

func (m *message) Bytes() []byte {
	return m.bytes
}

func (m *message) ID() ids.ID {
	return m.id
}

func (m *message) initialize(bytes []byte) {
	m.bytes = bytes
	m.id = hash.ComputeHash256Array(bytes)
}

// Initialize computes the encoding and id of a freshly built message.
func Initialize(m Message) error {
	bytes, err := Codec.Marshal(CodecVersion, &m)
	if err != nil {
		return fmt.Errorf("couldn't marshal %s message: %w", m.Kind(), err)
	}
	m.initialize(bytes)
	return nil
}

// Parse decodes a message and initializes it.
func Parse(bytes []byte) (Message, error) {
	var m Message
	if _, err := Codec.Unmarshal(bytes, &m); err != nil {
		return nil, err
	}
	m.initialize(bytes)
	return m, nil
}
