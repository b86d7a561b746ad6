// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/anchoring/btc"
)

func TestDecode(t *testing.T) {
	require := require.New(t)

	blockHash := ids.GenerateTestID()
	payloadScript, err := (&btc.Payload{Height: 12, BlockHash: blockHash}).Script()
	require.NoError(err)

	msg := wire.NewMsgTx(2)
	prev := chainhash.DoubleHashH([]byte("lect"))
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{txscript.OP_TRUE}, nil))
	msg.AddTxOut(wire.NewTxOut(5000, []byte{txscript.OP_TRUE}))
	msg.AddTxOut(wire.NewTxOut(0, payloadScript))
	tx, err := btc.NewTx(msg)
	require.NoError(err)

	c := Command()
	out := &bytes.Buffer{}
	c.SetOut(out)
	c.SetArgs([]string{tx.String()})
	require.NoError(c.Execute())

	var decoded Decoded
	require.NoError(json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(tx.ID().String(), decoded.TxID)
	require.Equal([]string{wire.NewOutPoint(&prev, 0).String()}, decoded.Inputs)
	require.Len(decoded.Outputs, 2)
	require.NotNil(decoded.Payload)
	require.Equal(uint64(12), decoded.Payload.Height)
	require.Equal(blockHash.String(), decoded.Payload.BlockHash)
	require.Equal("Regular", decoded.Payload.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	c := Command()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"00ff"})
	require.Error(t, c.Execute())
}
