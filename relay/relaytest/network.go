// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relaytest provides an in-memory Bitcoin network for tests.
package relaytest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/relay"
)

var (
	ErrMissingInputs = errors.New("transaction spends unknown or spent outputs")
	ErrScriptFailed  = errors.New("script verification failed")

	_ relay.Relay = (*Network)(nil)
)

type entry struct {
	tx *btc.Tx
	// height is the block that included tx, zero while in the mempool.
	height uint64
}

// Network is a single-wallet Bitcoin network. Broadcast transactions are
// checked against the UTXO set and every input script is executed.
type Network struct {
	lock sync.Mutex

	tip     uint64
	txs     map[btc.TxID]*entry
	utxos   map[wire.OutPoint]*wire.TxOut
	watched map[string]bool
	sent    []*btc.Tx
	nonce   uint64
	err     error
}

func New() *Network {
	return &Network{
		txs:     make(map[btc.TxID]*entry),
		utxos:   make(map[wire.OutPoint]*wire.TxOut),
		watched: make(map[string]bool),
	}
}

// SetError makes every following call fail with err until it is reset
// with nil.
func (n *Network) SetError(err error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.err = err
}

// Mine includes every mempool transaction in a new block and then adds
// blocks-1 empty blocks.
func (n *Network) Mine(blocks uint64) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if blocks == 0 {
		return
	}
	n.tip++
	for _, e := range n.txs {
		if e.height == 0 {
			e.height = n.tip
		}
	}
	n.tip += blocks - 1
}

// Sent returns the transactions broadcast with SendTransaction, in order.
func (n *Network) Sent() []*btc.Tx {
	n.lock.Lock()
	defer n.lock.Unlock()

	return append([]*btc.Tx(nil), n.sent...)
}

// Watched reports whether addr was passed to WatchAddress.
func (n *Network) Watched(addr string) bool {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.watched[addr]
}

// Unspent reports whether outpoint is in the UTXO set.
func (n *Network) Unspent(outpoint wire.OutPoint) bool {
	n.lock.Lock()
	defer n.lock.Unlock()

	_, ok := n.utxos[outpoint]
	return ok
}

func (n *Network) SendToAddress(_ context.Context, addr btcutil.Address, amount btcutil.Amount) (*btc.Tx, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.err != nil {
		return nil, n.err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	n.nonce++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], n.nonce)
	prev := chainhash.DoubleHashH(seed[:])

	msg := wire.NewMsgTx(2)
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{txscript.OP_TRUE}, nil))
	msg.AddTxOut(wire.NewTxOut(int64(amount), pkScript))
	tx, err := btc.NewTx(msg)
	if err != nil {
		return nil, err
	}
	n.accept(tx)
	return tx, nil
}

func (n *Network) TransactionInfo(_ context.Context, id btc.TxID) (*relay.TxInfo, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.err != nil {
		return nil, n.err
	}
	e, ok := n.txs[id]
	if !ok {
		return nil, nil
	}
	info := &relay.TxInfo{Tx: e.tx}
	if e.height != 0 {
		info.Confirmations = n.tip - e.height + 1
	}
	return info, nil
}

func (n *Network) SendTransaction(_ context.Context, tx *btc.Tx) (btc.TxID, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	id := tx.ID()
	if n.err != nil {
		return id, n.err
	}
	if _, ok := n.txs[id]; ok {
		return id, nil
	}
	if err := n.verify(tx); err != nil {
		return id, err
	}
	for _, outpoint := range tx.Inputs() {
		delete(n.utxos, outpoint)
	}
	n.accept(tx)
	n.sent = append(n.sent, tx)
	return id, nil
}

func (n *Network) WatchAddress(_ context.Context, addr btcutil.Address, _ bool) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.err != nil {
		return n.err
	}
	n.watched[addr.EncodeAddress()] = true
	return nil
}

func (n *Network) verify(tx *btc.Tx) error {
	inputs := tx.Inputs()
	prevOuts := make(btc.PrevOuts, len(inputs))
	for i, outpoint := range inputs {
		out, ok := n.utxos[outpoint]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingInputs, outpoint)
		}
		prevOuts[i] = out
	}

	fetcher, err := btc.Fetcher(tx, prevOuts)
	if err != nil {
		return err
	}
	msg := tx.Msg()
	sigHashes := txscript.NewTxSigHashes(msg, fetcher)
	for i, out := range prevOuts {
		engine, err := txscript.NewEngine(
			out.PkScript,
			msg,
			i,
			txscript.StandardVerifyFlags,
			nil,
			sigHashes,
			out.Value,
			fetcher,
		)
		if err != nil {
			return err
		}
		if err := engine.Execute(); err != nil {
			return fmt.Errorf("%w: input %d: %w", ErrScriptFailed, i, err)
		}
	}
	return nil
}

func (n *Network) accept(tx *btc.Tx) {
	id := tx.ID()
	n.txs[id] = &entry{tx: tx}
	for i, out := range tx.Outputs() {
		if txscript.IsUnspendable(out.PkScript) {
			continue
		}
		n.utxos[*wire.NewOutPoint(&id, uint32(i))] = out
	}
}
