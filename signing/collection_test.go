// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signing

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/txs"
)

type fixture struct {
	keys     []*btcec.PrivateKey
	config   *config.AnchoringConfig
	script   btc.RedeemScript
	proposal *btc.Tx
	prevOuts btc.PrevOuts
}

// newFixture builds a two input proposal spending outputs locked to the
// multisig of n validators.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	require := require.New(t)

	f := &fixture{}
	cfg := config.DefaultConfig()
	cfg.Network = config.Regtest
	for i := 0; i < n; i++ {
		key, err := btcec.NewPrivateKey()
		require.NoError(err)
		f.keys = append(f.keys, key)
		cfg.Validators = append(cfg.Validators, btc.NewPublicKey(key.PubKey()))
	}
	f.config = &cfg

	var err error
	f.script, err = cfg.RedeemScript()
	require.NoError(err)
	pkScript, err := f.script.PkScript()
	require.NoError(err)

	msg := wire.NewMsgTx(2)
	for i, seed := range []string{"a", "b"} {
		prev := chainhash.DoubleHashH([]byte(seed))
		msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, uint32(i)), nil, nil))
		f.prevOuts = append(f.prevOuts, wire.NewTxOut(50000, pkScript))
	}
	msg.AddTxOut(wire.NewTxOut(95000, pkScript))
	f.proposal, err = btc.NewTx(msg)
	require.NoError(err)
	return f
}

func (f *fixture) sign(t *testing.T, validator, input int) *txs.Signature {
	t.Helper()

	sig, err := btc.SignInput(f.proposal, f.prevOuts, input, f.script, f.keys[validator])
	require.NoError(t, err)
	msg, err := txs.NewSignature(uint32(validator), uint32(input), f.proposal, sig)
	require.NoError(t, err)
	return msg
}

func TestStatus(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, 4)
	c := NewCollection(f.proposal, f.config, nil)
	require.Equal(Proposed, c.Status())

	var sigs []*txs.Signature
	for validator := 0; validator < 3; validator++ {
		sigs = append(sigs, f.sign(t, validator, 0))
	}
	c = NewCollection(f.proposal, f.config, sigs)
	require.Equal(PartiallySigned, c.Status())
	require.True(c.Signed(0, 2))
	require.False(c.Signed(1, 2))
	require.False(c.Signed(5, 0))

	_, err := c.Assemble()
	require.ErrorIs(err, ErrIncomplete)

	for validator := 0; validator < 3; validator++ {
		sigs = append(sigs, f.sign(t, validator, 1))
	}
	c = NewCollection(f.proposal, f.config, sigs)
	require.Equal(Complete, c.Status())
}

func TestSelectLowestIndices(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, 4)
	var sigs []*txs.Signature
	for _, validator := range []int{3, 1, 0, 2} {
		sigs = append(sigs, f.sign(t, validator, 0))
	}
	c := NewCollection(f.proposal, f.config, sigs)

	selected, err := c.Select(0)
	require.NoError(err)
	require.Equal([][]byte{sigs[2].Signature, sigs[1].Signature, sigs[3].Signature}, selected)

	_, err = c.Select(1)
	require.ErrorIs(err, ErrIncomplete)
}

func TestIgnoresForeignSignatures(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, 4)
	other := newFixture(t, 4)

	outOfRange, err := txs.NewSignature(9, 0, f.proposal, []byte{1})
	require.NoError(err)
	badInput, err := txs.NewSignature(0, 7, f.proposal, []byte{1})
	require.NoError(err)

	c := NewCollection(f.proposal, f.config, []*txs.Signature{
		other.sign(t, 0, 0),
		outOfRange,
		badInput,
	})
	require.Equal(Proposed, c.Status())
}

func TestAssembleSpendsInputs(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, 5)
	var sigs []*txs.Signature
	for input := 0; input < 2; input++ {
		for validator := 4; validator >= 0; validator-- {
			sigs = append(sigs, f.sign(t, validator, input))
		}
	}
	c := NewCollection(f.proposal, f.config, sigs)
	require.Equal(Complete, c.Status())

	signed, err := c.Assemble()
	require.NoError(err)
	require.Equal(f.proposal.ID(), signed.ID())

	msg := signed.Msg()
	fetcher, err := btc.Fetcher(signed, f.prevOuts)
	require.NoError(err)
	sigHashes := txscript.NewTxSigHashes(msg, fetcher)
	for input, prevOut := range f.prevOuts {
		require.Len(msg.TxIn[input].Witness, f.config.Threshold()+2)
		engine, err := txscript.NewEngine(prevOut.PkScript, msg, input, txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value, fetcher)
		require.NoError(err)
		require.NoError(engine.Execute())
	}
}

func TestStatusString(t *testing.T) {
	require := require.New(t)

	require.Equal("Proposed", Proposed.String())
	require.Equal("PartiallySigned", PartiallySigned.String())
	require.Equal("Complete", Complete.String())
	require.Equal("Unknown", Status(9).String())
}
