// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package btc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInputOutOfRange   = errors.New("input index out of range")
	ErrPrevOutsMismatch  = errors.New("previous outputs do not match inputs")
	ErrScriptMismatch    = errors.New("spent output is not locked to the redeem script")
	ErrWrongNumberOfSigs = errors.New("wrong number of signatures")
)

// PrevOuts holds the outputs spent by a transaction, in input order.
type PrevOuts []*wire.TxOut

// Fetcher indexes prevOuts by the outpoints tx spends.
func Fetcher(tx *Tx, prevOuts PrevOuts) (*txscript.MultiPrevOutFetcher, error) {
	if len(prevOuts) != len(tx.msg.TxIn) {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", ErrPrevOutsMismatch, len(tx.msg.TxIn), len(prevOuts))
	}
	fetcher := txscript.NewMultiPrevOutFetcher(make(map[wire.OutPoint]*wire.TxOut, len(prevOuts)))
	for i, in := range tx.msg.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOuts[i])
	}
	return fetcher, nil
}

func witnessSigHash(tx *Tx, prevOuts PrevOuts, input int, script RedeemScript) ([]byte, error) {
	if input < 0 || input >= len(tx.msg.TxIn) {
		return nil, fmt.Errorf("%w: %d", ErrInputOutOfRange, input)
	}
	fetcher, err := Fetcher(tx, prevOuts)
	if err != nil {
		return nil, err
	}
	pkScript, err := script.PkScript()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prevOuts[input].PkScript, pkScript) {
		return nil, ErrScriptMismatch
	}
	sigHashes := txscript.NewTxSigHashes(tx.msg, fetcher)
	return txscript.CalcWitnessSigHash(script, sigHashes, txscript.SigHashAll, tx.msg, input, prevOuts[input].Value)
}

// SignInput signs input of tx with SIGHASH_ALL under the segwit v0 rules. The
// returned signature is DER encoded with the sighash byte appended.
func SignInput(tx *Tx, prevOuts PrevOuts, input int, script RedeemScript, key *btcec.PrivateKey) ([]byte, error) {
	hash, err := witnessSigHash(tx, prevOuts, input, script)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(key, hash)
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

// VerifyInput checks a signature produced by SignInput.
func VerifyInput(tx *Tx, prevOuts PrevOuts, input int, script RedeemScript, key PublicKey, sig []byte) error {
	if len(sig) < 2 || txscript.SigHashType(sig[len(sig)-1]) != txscript.SigHashAll {
		return fmt.Errorf("%w: unexpected sighash type", ErrInvalidSignature)
	}
	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	hash, err := witnessSigHash(tx, prevOuts, input, script)
	if err != nil {
		return err
	}
	if key.Key() == nil || !parsed.Verify(hash, key.Key()) {
		return ErrInvalidSignature
	}
	return nil
}

// Finalize attaches P2WSH multisig witnesses to tx. sigs holds, for every
// input, exactly quorum signatures ordered like the keys in script.
func Finalize(tx *Tx, script RedeemScript, quorum int, sigs [][][]byte) (*Tx, error) {
	if len(sigs) != len(tx.msg.TxIn) {
		return nil, fmt.Errorf("%w: %d inputs, %d signature sets", ErrWrongNumberOfSigs, len(tx.msg.TxIn), len(sigs))
	}
	msg := tx.msg.Copy()
	for i, inputSigs := range sigs {
		if len(inputSigs) != quorum {
			return nil, fmt.Errorf("%w: input %d has %d, want %d", ErrWrongNumberOfSigs, i, len(inputSigs), quorum)
		}
		// OP_CHECKMULTISIG pops one extra element, which must be empty.
		witness := make(wire.TxWitness, 0, quorum+2)
		witness = append(witness, nil)
		witness = append(witness, inputSigs...)
		witness = append(witness, script)
		msg.TxIn[i].Witness = witness
	}
	return NewTx(msg)
}
