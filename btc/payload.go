// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package btc

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/luxfi/ids"

	"github.com/luxfi/anchoring/utils/wrappers"
)

const (
	payloadMagic = "ANCHOR"

	// PayloadVersion is the only layout understood by this package.
	PayloadVersion byte = 1

	regularPayloadLen  = len(payloadMagic) + 2*wrappers.ByteLen + wrappers.LongLen + ids.IDLen
	recoveryPayloadLen = regularPayloadLen + chainhash.HashSize
)

// PayloadKind distinguishes a plain checkpoint from one that restarts a chain
// after the previous anchoring output was lost.
type PayloadKind byte

const (
	RegularPayload PayloadKind = iota
	RecoveryPayload
)

func (k PayloadKind) String() string {
	switch k {
	case RegularPayload:
		return "Regular"
	case RecoveryPayload:
		return "Recovery"
	default:
		return "Unknown"
	}
}

var (
	ErrNotPayload         = errors.New("script is not an anchoring payload")
	errUnknownVersion     = errors.New("unknown payload version")
	errUnknownKind        = errors.New("unknown payload kind")
	errMissingPrevTxChain = errors.New("recovery payload without previous chain")
)

// Payload is the checkpoint embedded in an anchoring transaction's OP_RETURN
// output.
type Payload struct {
	Height    uint64
	BlockHash ids.ID
	// PrevTxChain is set only for recovery payloads and names the last
	// transaction of the abandoned chain.
	PrevTxChain *TxID
}

// Kind returns the payload kind.
func (p *Payload) Kind() PayloadKind {
	if p.PrevTxChain != nil {
		return RecoveryPayload
	}
	return RegularPayload
}

// Bytes packs the payload as
// magic | version | kind | height (u64 LE) | block hash [| prev tx chain].
func (p *Payload) Bytes() []byte {
	size := regularPayloadLen
	if p.PrevTxChain != nil {
		size = recoveryPayloadLen
	}
	packer := wrappers.Packer{
		MaxSize: size,
		Bytes:   make([]byte, 0, size),
	}
	packer.PackFixedBytes([]byte(payloadMagic))
	packer.PackByte(PayloadVersion)
	packer.PackByte(byte(p.Kind()))
	packer.PackLong(p.Height)
	packer.PackFixedBytes(p.BlockHash[:])
	if p.PrevTxChain != nil {
		packer.PackFixedBytes(p.PrevTxChain[:])
	}
	return packer.Bytes
}

// Script returns the OP_RETURN output script carrying the payload.
func (p *Payload) Script() ([]byte, error) {
	return txscript.NullDataScript(p.Bytes())
}

// ParsePayloadScript extracts the payload from an OP_RETURN output script.
func ParsePayloadScript(script []byte) (*Payload, error) {
	if txscript.GetScriptClass(script) != txscript.NullDataTy {
		return nil, ErrNotPayload
	}
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	// OP_RETURN
	if !tokenizer.Next() || !tokenizer.Next() {
		return nil, ErrNotPayload
	}
	return ParsePayload(tokenizer.Data())
}

// ParsePayload decodes the data pushed by an anchoring OP_RETURN output.
func ParsePayload(data []byte) (*Payload, error) {
	if len(data) != regularPayloadLen && len(data) != recoveryPayloadLen {
		return nil, ErrNotPayload
	}
	packer := wrappers.Packer{Bytes: data}
	if string(packer.UnpackFixedBytes(len(payloadMagic))) != payloadMagic {
		return nil, ErrNotPayload
	}
	if version := packer.UnpackByte(); version != PayloadVersion {
		return nil, fmt.Errorf("%w: %d", errUnknownVersion, version)
	}
	kind := PayloadKind(packer.UnpackByte())
	payload := &Payload{
		Height: packer.UnpackLong(),
	}
	copy(payload.BlockHash[:], packer.UnpackFixedBytes(ids.IDLen))

	switch kind {
	case RegularPayload:
	case RecoveryPayload:
		if packer.Remaining() != chainhash.HashSize {
			return nil, errMissingPrevTxChain
		}
		var prev TxID
		copy(prev[:], packer.UnpackFixedBytes(chainhash.HashSize))
		payload.PrevTxChain = &prev
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownKind, kind)
	}
	if packer.Err != nil {
		return nil, packer.Err
	}
	if packer.Remaining() != 0 {
		return nil, ErrNotPayload
	}
	return payload, nil
}
