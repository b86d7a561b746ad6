// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay is the node's view of the Bitcoin network.
package relay

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/luxfi/anchoring/btc"
)

// TxInfo describes a transaction known to the relay.
type TxInfo struct {
	Tx *btc.Tx
	// Confirmations is zero while the transaction is in the mempool.
	Confirmations uint64
}

// Relay sends and looks up Bitcoin transactions.
type Relay interface {
	// SendToAddress pays amount from the relay's wallet to addr and returns
	// the resulting transaction.
	SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) (*btc.Tx, error)
	// TransactionInfo returns nil if the transaction is unknown.
	TransactionInfo(ctx context.Context, id btc.TxID) (*TxInfo, error)
	// SendTransaction broadcasts tx.
	SendTransaction(ctx context.Context, tx *btc.Tx) (btc.TxID, error)
	// WatchAddress makes the relay track transactions paying to addr.
	WatchAddress(ctx context.Context, addr btcutil.Address, rescan bool) error
}
