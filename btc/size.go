// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package btc

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"

	safemath "github.com/luxfi/anchoring/utils/math"
)

// maxSigLen is a DER signature of maximal length plus the sighash byte.
const maxSigLen = 73

// EstimateVirtualSize returns an upper bound on the virtual size of tx once
// every input carries a quorum-of-n multisig witness for script.
func EstimateVirtualSize(tx *Tx, script RedeemScript, quorum int) uint64 {
	witnessItems := uint64(quorum + 2)
	perInput := uint64(wire.VarIntSerializeSize(witnessItems)) +
		1 + // empty dummy element
		uint64(quorum)*(1+maxSigLen) +
		uint64(wire.VarIntSerializeSize(uint64(len(script)))) + uint64(len(script))

	// segwit marker and flag
	witnessSize := 2 + perInput*uint64(len(tx.msg.TxIn))
	weight := uint64(tx.msg.SerializeSizeStripped())*blockchain.WitnessScaleFactor + witnessSize
	return safemath.DivCeil[uint64](weight, blockchain.WitnessScaleFactor)
}
