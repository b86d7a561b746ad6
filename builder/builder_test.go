// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
)

const fundingValue = 70000

type validatorSet struct {
	keys   []*btcec.PrivateKey
	config *config.AnchoringConfig
}

func newValidatorSet(t *testing.T, n int, seed string) *validatorSet {
	t.Helper()
	require := require.New(t)

	v := &validatorSet{}
	cfg := config.DefaultConfig()
	cfg.Network = config.Regtest
	cfg.Frequency = 4
	for i := 0; i < n; i++ {
		key, err := btcec.NewPrivateKey()
		require.NoError(err)
		v.keys = append(v.keys, key)
		cfg.Validators = append(cfg.Validators, btc.NewPublicKey(key.PubKey()))
	}
	pkScript, err := cfg.PkScript()
	require.NoError(err)
	cfg.FundingTx = payTo(t, pkScript, fundingValue, seed, nil)
	v.config = &cfg
	return v
}

func (v *validatorSet) pkScript(t *testing.T) []byte {
	pkScript, err := v.config.PkScript()
	require.NoError(t, err)
	return pkScript
}

// sign fully signs proposal with the keys of v.
func (v *validatorSet) sign(t *testing.T, p *Proposal) *btc.Tx {
	t.Helper()
	require := require.New(t)

	script, err := v.config.RedeemScript()
	require.NoError(err)
	threshold := v.config.Threshold()
	sigs := make([][][]byte, p.Tx.NumInputs())
	for input := range sigs {
		for _, key := range v.keys[:threshold] {
			sig, err := btc.SignInput(p.Tx, p.PrevOuts, input, script, key)
			require.NoError(err)
			sigs[input] = append(sigs[input], sig)
		}
	}
	signed, err := btc.Finalize(p.Tx, script, threshold, sigs)
	require.NoError(err)
	return signed
}

func payTo(t *testing.T, pkScript []byte, value int64, seed string, payload *btc.Payload) *btc.Tx {
	t.Helper()

	msg := wire.NewMsgTx(2)
	prev := chainhash.DoubleHashH([]byte(seed))
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{txscript.OP_TRUE}, nil))
	msg.AddTxOut(wire.NewTxOut(value, pkScript))
	if payload != nil {
		script, err := payload.Script()
		require.NoError(t, err)
		msg.AddTxOut(wire.NewTxOut(0, script))
	}
	tx, err := btc.NewTx(msg)
	require.NoError(t, err)
	return tx
}

func requireSpends(t *testing.T, p *Proposal, txs ...*btc.Tx) {
	t.Helper()
	require := require.New(t)

	inputs := p.Tx.Inputs()
	require.Len(inputs, len(txs))
	require.Len(p.PrevOuts, len(txs))
	for i, tx := range txs {
		require.Equal(tx.ID(), inputs[i].Hash)
	}
}

func TestNoLect(t *testing.T) {
	v := newValidatorSet(t, 4, "funding")
	p, err := Build(&State{Actual: v.config})
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestGenesisAnchor(t *testing.T) {
	require := require.New(t)

	v := newValidatorSet(t, 4, "funding")
	hash := ids.GenerateTestID()
	p, err := Build(&State{
		AnchoringHash: hash,
		Actual:        v.config,
		Lect:          v.config.FundingTx,
	})
	require.NoError(err)
	require.NotNil(p)
	require.Equal(Periodic, p.Kind)
	require.Equal(v.config, p.Config)

	// The funding transaction is the lect, so it is spent only once.
	requireSpends(t, p, v.config.FundingTx)

	outputs := p.Tx.Outputs()
	require.Len(outputs, 2)
	require.Equal(v.pkScript(t), outputs[0].PkScript)

	payload, ok := p.Tx.Payload()
	require.True(ok)
	require.Equal(&btc.Payload{Height: 0, BlockHash: hash}, payload)

	script, err := v.config.RedeemScript()
	require.NoError(err)
	fee := btc.EstimateVirtualSize(p.Tx, script, v.config.Threshold()) * v.config.TransactionFee
	require.Equal(int64(fundingValue)-int64(fee), outputs[0].Value)
}

func TestPeriodicAnchoring(t *testing.T) {
	require := require.New(t)

	v := newValidatorSet(t, 4, "funding")
	lect := payTo(t, v.pkScript(t), 60000, "lect", &btc.Payload{Height: 0, BlockHash: ids.GenerateTestID()})

	state := &State{
		Height:       3,
		Actual:       v.config,
		Lect:         lect,
		FundingSpent: true,
	}
	p, err := Build(state)
	require.NoError(err)
	require.Nil(p)

	state.Height = 5
	state.AnchoringHash = ids.GenerateTestID()
	p, err = Build(state)
	require.NoError(err)
	require.NotNil(p)
	require.Equal(Periodic, p.Kind)
	requireSpends(t, p, lect)

	payload, ok := p.Tx.Payload()
	require.True(ok)
	require.Equal(uint64(4), payload.Height)
	require.Equal(state.AnchoringHash, payload.BlockHash)

	// Construction is deterministic.
	again, err := Build(state)
	require.NoError(err)
	require.True(p.Tx.Equal(again.Tx))
}

func TestAdditionalFunding(t *testing.T) {
	require := require.New(t)

	v := newValidatorSet(t, 4, "second funding")
	lect := payTo(t, v.pkScript(t), 60000, "lect", &btc.Payload{Height: 0, BlockHash: ids.GenerateTestID()})
	state := &State{
		Height: 4,
		Actual: v.config,
		Lect:   lect,
	}

	p, err := Build(state)
	require.NoError(err)
	requireSpends(t, p, lect, v.config.FundingTx)
	require.Greater(p.Tx.Outputs()[0].Value, int64(fundingValue))

	state.FundingSpent = true
	p, err = Build(state)
	require.NoError(err)
	requireSpends(t, p, lect)
}

func TestTransition(t *testing.T) {
	require := require.New(t)

	actual := newValidatorSet(t, 4, "funding")
	following := newValidatorSet(t, 5, "following funding")
	anchored := &btc.Payload{Height: 4, BlockHash: ids.GenerateTestID()}
	lect := payTo(t, actual.pkScript(t), 60000, "lect", anchored)

	state := &State{
		Height:       6,
		Actual:       actual.config,
		Following:    following.config,
		Lect:         lect,
		FundingSpent: true,
	}
	p, err := Build(state)
	require.NoError(err)
	require.NotNil(p)
	require.Equal(Transition, p.Kind)
	require.Equal(actual.config, p.Config)
	requireSpends(t, p, lect)

	outputs := p.Tx.Outputs()
	require.Equal(following.pkScript(t), outputs[0].PkScript)
	payload, ok := p.Tx.Payload()
	require.True(ok)
	require.Equal(anchored, payload)

	// The old validators can spend the lect.
	signed := actual.sign(t, p)
	require.True(signed.HasWitness())
	require.Equal(p.Tx.ID(), signed.ID())

	// Once the funds moved, nothing is built until the following
	// configuration is actual.
	state.Lect = signed
	p, err = Build(state)
	require.NoError(err)
	require.Nil(p)

	// Then periodic anchoring resumes at the new address.
	state.Height = 8
	state.Actual = following.config
	state.Previous = actual.config
	state.Following = nil
	p, err = Build(state)
	require.NoError(err)
	require.NotNil(p)
	require.Equal(Periodic, p.Kind)
	require.Equal(following.config, p.Config)
	requireSpends(t, p, signed)
	require.Equal(following.pkScript(t), p.Tx.Outputs()[0].PkScript)
}

func TestTransitionWithoutPayload(t *testing.T) {
	require := require.New(t)

	actual := newValidatorSet(t, 4, "funding")
	following := newValidatorSet(t, 4, "following funding")

	p, err := Build(&State{
		Actual:    actual.config,
		Following: following.config,
		Lect:      actual.config.FundingTx,
	})
	require.NoError(err)
	require.Equal(Transition, p.Kind)
	require.Len(p.Tx.Outputs(), 1)
	_, ok := p.Tx.Payload()
	require.False(ok)
}

func TestLateTransition(t *testing.T) {
	require := require.New(t)

	previous := newValidatorSet(t, 4, "funding")
	actual := newValidatorSet(t, 3, "actual funding")
	lect := payTo(t, previous.pkScript(t), 60000, "lect", &btc.Payload{Height: 4, BlockHash: ids.GenerateTestID()})

	p, err := Build(&State{
		Height:   12,
		Actual:   actual.config,
		Previous: previous.config,
		Lect:     lect,
	})
	require.NoError(err)
	require.Equal(Transition, p.Kind)
	require.Equal(previous.config, p.Config)
	require.Equal(actual.pkScript(t), p.Tx.Outputs()[0].PkScript)
}

func TestBuildErrors(t *testing.T) {
	v := newValidatorSet(t, 4, "funding")
	other := newValidatorSet(t, 4, "other")

	tests := []struct {
		name        string
		state       *State
		expectedErr error
	}{
		{
			name: "lect pays elsewhere",
			state: &State{
				Actual: v.config,
				Lect:   other.config.FundingTx,
			},
			expectedErr: ErrLectNotSpendable,
		},
		{
			name: "fee exceeds inputs",
			state: &State{
				Actual:       v.config,
				Lect:         payTo(t, v.pkScript(t), 1000, "small", nil),
				FundingSpent: true,
			},
			expectedErr: ErrInsufficientFunds,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Build(test.state)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "Periodic", Periodic.String())
	require.Equal(t, "Transition", Transition.String())
	require.Equal(t, "Unknown", Kind(9).String())
}
