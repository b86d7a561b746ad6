// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

// Allow the service to execute custom logic against the message types.
type Visitor interface {
	Signature(*Signature) error
	Lect(*Lect) error
}
