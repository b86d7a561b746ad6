// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package anchoring

// MessageKind identifies the ledger messages executed by the anchoring service
type MessageKind uint32

const (
	// SignatureMessage carries a validator's signature for one input of a
	// proposed anchoring transaction.
	SignatureMessage MessageKind = iota
	// LectMessage reports a validator's latest expected chain transaction.
	LectMessage
)

// String returns the string representation of the message kind
func (m MessageKind) String() string {
	switch m {
	case SignatureMessage:
		return "Signature"
	case LectMessage:
		return "Lect"
	default:
		return "Unknown"
	}
}
