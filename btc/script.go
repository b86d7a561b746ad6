// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package btc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// MaxMultisigKeys is the largest key count OP_CHECKMULTISIG accepts.
const MaxMultisigKeys = txscript.MaxPubKeysPerMultiSig

var ErrInvalidQuorum = errors.New("invalid multisig quorum")

// RedeemScript is an m-of-n OP_CHECKMULTISIG script. Funds are locked to its
// P2WSH witness program.
type RedeemScript []byte

// NewRedeemScript builds the script for the keys in the given order.
// Signatures must be supplied in that same order when spending.
func NewRedeemScript(keys []PublicKey, quorum int, params *chaincfg.Params) (RedeemScript, error) {
	if quorum < 1 || quorum > len(keys) || len(keys) > MaxMultisigKeys {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidQuorum, quorum, len(keys))
	}
	addrs := make([]*btcutil.AddressPubKey, len(keys))
	for i, key := range keys {
		addr, err := btcutil.NewAddressPubKey(key.Bytes(), params)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	script, err := txscript.MultiSigScript(addrs, quorum)
	if err != nil {
		return nil, err
	}
	return RedeemScript(script), nil
}

// WitnessProgram returns the SHA256 of the script.
func (s RedeemScript) WitnessProgram() [sha256.Size]byte {
	return sha256.Sum256(s)
}

// Address returns the P2WSH address locking funds to the script.
func (s RedeemScript) Address(params *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {
	program := s.WitnessProgram()
	return btcutil.NewAddressWitnessScriptHash(program[:], params)
}

// PkScript returns the output script paying to the script's P2WSH address.
func (s RedeemScript) PkScript() ([]byte, error) {
	program := s.WitnessProgram()
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(program[:]).
		Script()
}

func (s RedeemScript) String() string {
	return hex.EncodeToString(s)
}
