// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/ledger"
	"github.com/luxfi/anchoring/txs"
)

func newSchema() *Schema {
	return New(memdb.New(), log.NoLog{})
}

func newConfig(t *testing.T, n int) *config.AnchoringConfig {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Network = config.Regtest
	cfg.Frequency = 4
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		cfg.Validators = append(cfg.Validators, btc.NewPublicKey(priv.PubKey()))
	}
	pkScript, err := cfg.PkScript()
	require.NoError(t, err)
	cfg.FundingTx = payTo(t, pkScript, 70000, "funding")
	return &cfg
}

// payTo builds a transaction paying value to pkScript. seed makes it unique.
func payTo(t *testing.T, pkScript []byte, value int64, seed string) *btc.Tx {
	t.Helper()

	msg := wire.NewMsgTx(2)
	prev := chainhash.DoubleHashH([]byte(seed))
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{txscript.OP_TRUE}, nil))
	msg.AddTxOut(wire.NewTxOut(value, pkScript))
	tx, err := btc.NewTx(msg)
	require.NoError(t, err)
	return tx
}

func commitConfig(t *testing.T, s *Schema, actualFrom uint64, payload []byte) {
	t.Helper()

	require.NoError(t, s.Ledger().CommitConfiguration(&ledger.Configuration{
		ActualFrom: actualFrom,
		Services: map[string]json.RawMessage{
			anchoring.ServiceName: payload,
		},
	}))
}

func TestAddLectAppendOnly(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 1)
	validator := cfg.Validators[0]

	lect, err := s.Lect(validator)
	require.NoError(err)
	require.Nil(lect)

	const k = 5
	reported := make([]*btc.Tx, k)
	for i := range reported {
		reported[i] = payTo(t, []byte{txscript.OP_TRUE}, int64(i+1), fmt.Sprint(i))
		require.NoError(s.AddLect(validator, reported[i], ids.GenerateTestID()))
	}

	length, err := s.LectsLen(validator)
	require.NoError(err)
	require.Equal(uint64(k), length)

	for i, tx := range reported {
		content, err := s.LectAt(validator, uint64(i))
		require.NoError(err)
		require.Equal(tx.Bytes(), content.Tx)

		position, ok, err := s.FindLectPosition(validator, tx.ID())
		require.NoError(err)
		require.True(ok)
		require.Equal(uint64(i), position)

		known, err := s.KnownTx(tx.ID())
		require.NoError(err)
		require.True(tx.Equal(known))
	}

	lect, err = s.Lect(validator)
	require.NoError(err)
	require.True(reported[k-1].Equal(lect))

	prev, err := s.PrevLect(validator)
	require.NoError(err)
	require.True(reported[k-2].Equal(prev))

	_, ok, err := s.FindLectPosition(validator, chainhash.DoubleHashH([]byte("unknown")))
	require.NoError(err)
	require.False(ok)
}

func TestAddLectDuplicateContentAppends(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 1)
	validator := cfg.Validators[0]

	tx := payTo(t, []byte{txscript.OP_TRUE}, 1, "dup")
	require.NoError(s.AddLect(validator, tx, ids.GenerateTestID()))

	prev, err := s.PrevLect(validator)
	require.NoError(err)
	require.Nil(prev)

	require.NoError(s.AddLect(validator, tx, ids.GenerateTestID()))
	length, err := s.LectsLen(validator)
	require.NoError(err)
	require.Equal(uint64(2), length)

	position, ok, err := s.FindLectPosition(validator, tx.ID())
	require.NoError(err)
	require.True(ok)
	require.Equal(uint64(1), position)
}

func TestAddKnownSignatureIdempotent(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	proposal := payTo(t, []byte{txscript.OP_TRUE}, 1, "proposal")

	first, err := txs.NewSignature(1, 0, proposal, []byte{0x01})
	require.NoError(err)
	second, err := txs.NewSignature(1, 0, proposal, []byte{0x02})
	require.NoError(err)
	otherInput, err := txs.NewSignature(1, 1, proposal, []byte{0x03})
	require.NoError(err)

	stored, err := s.AddKnownSignature(first)
	require.NoError(err)
	require.True(stored)
	stored, err = s.AddKnownSignature(second)
	require.NoError(err)
	require.False(stored)
	stored, err = s.AddKnownSignature(otherInput)
	require.NoError(err)
	require.True(stored)

	sigs, err := s.Signatures(proposal.ID())
	require.NoError(err)
	require.Len(sigs, 2)
	require.Equal([]byte{0x01}, sigs[0].Signature)
	require.Equal([]byte{0x03}, sigs[1].Signature)

	none, err := s.Signatures(chainhash.DoubleHashH([]byte("other")))
	require.NoError(err)
	require.Empty(none)
}

func TestKnownAddresses(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	known, err := s.IsAddressKnown("bcrt1qaddr")
	require.NoError(err)
	require.False(known)

	require.NoError(s.AddKnownAddress("bcrt1qaddr"))
	require.NoError(s.AddKnownAddress("bcrt1qaddr"))
	known, err = s.IsAddressKnown("bcrt1qaddr")
	require.NoError(err)
	require.True(known)
}

func TestCreateGenesisConfig(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 4)
	require.NoError(s.CreateGenesisConfig(cfg))

	for _, validator := range cfg.Validators {
		length, err := s.LectsLen(validator)
		require.NoError(err)
		require.Equal(uint64(1), length)

		content, err := s.LectAt(validator, 0)
		require.NoError(err)
		require.Equal(ids.Empty, content.OriginHash)
		require.Equal(cfg.FundingTx.Bytes(), content.Tx)
	}

	addr, err := cfg.Address()
	require.NoError(err)
	known, err := s.IsAddressKnown(addr)
	require.NoError(err)
	require.True(known)

	lect, err := s.CollectLects(cfg)
	require.NoError(err)
	require.True(cfg.FundingTx.Equal(lect))

	noFunding := cfg.Copy()
	noFunding.FundingTx = nil
	require.ErrorIs(newSchema().CreateGenesisConfig(noFunding), ErrNoFunding)
}

func TestCollectLectsMajority(t *testing.T) {
	for n := 1; n <= 7; n++ {
		cfg := newConfig(t, n)
		for agreeing := 0; agreeing <= n; agreeing++ {
			t.Run(fmt.Sprintf("%d of %d", agreeing, n), func(t *testing.T) {
				require := require.New(t)

				s := newSchema()
				common := payTo(t, []byte{txscript.OP_TRUE}, 1, "common")
				for i, validator := range cfg.Validators {
					tx := common
					if i >= agreeing {
						tx = payTo(t, []byte{txscript.OP_TRUE}, 1, fmt.Sprint("own", i))
					}
					require.NoError(s.AddLect(validator, tx, ids.GenerateTestID()))
				}

				lect, err := s.CollectLects(cfg)
				require.NoError(err)
				switch {
				case agreeing >= anchoring.MajorityCount(n):
					require.True(common.Equal(lect))
				case n == 1:
					// a lone validator is a majority by itself
					require.NotNil(lect)
				default:
					// every other lect is distinct
					require.Nil(lect)
				}
			})
		}
	}
}

func TestCollectLectsMissingReports(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 4)
	tx := payTo(t, []byte{txscript.OP_TRUE}, 1, "lect")

	// 2 of 4 is not enough
	require.NoError(s.AddLect(cfg.Validators[0], tx, ids.Empty))
	require.NoError(s.AddLect(cfg.Validators[1], tx, ids.Empty))
	lect, err := s.CollectLects(cfg)
	require.NoError(err)
	require.Nil(lect)

	require.NoError(s.AddLect(cfg.Validators[2], tx, ids.Empty))
	lengthBefore, err := s.LectsLen(cfg.Validators[2])
	require.NoError(err)

	lect, err = s.CollectLects(cfg)
	require.NoError(err)
	require.True(tx.Equal(lect))

	lengthAfter, err := s.LectsLen(cfg.Validators[2])
	require.NoError(err)
	require.Equal(lengthBefore, lengthAfter)
}

func TestSpentOutputs(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 1)
	fundingOutpoint, _, err := cfg.FundingOutput()
	require.NoError(err)

	spent, err := s.IsSpent(fundingOutpoint)
	require.NoError(err)
	require.False(spent)

	msg := wire.NewMsgTx(2)
	msg.AddTxIn(wire.NewTxIn(&fundingOutpoint, nil, nil))
	msg.AddTxOut(wire.NewTxOut(1, []byte{txscript.OP_TRUE}))
	spender, err := btc.NewTx(msg)
	require.NoError(err)
	require.NoError(s.MarkSpent(spender))

	spent, err = s.IsSpent(fundingOutpoint)
	require.NoError(err)
	require.True(spent)
}

func TestConfigAccessors(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 4)
	payload, err := cfg.Bytes()
	require.NoError(err)
	commitConfig(t, s, 0, payload)

	actual, err := s.ActualConfig()
	require.NoError(err)
	require.Len(actual.Validators, 4)

	following, err := s.FollowingConfig()
	require.NoError(err)
	require.Nil(following)
	previous, err := s.PreviousConfig()
	require.NoError(err)
	require.Nil(previous)

	next := cfg.Copy()
	next.Validators = next.Validators[:3]
	next.FundingTx = nil
	nextPayload, err := next.Bytes()
	require.NoError(err)
	commitConfig(t, s, 16, nextPayload)

	following, err = s.FollowingConfig()
	require.NoError(err)
	require.Len(following.Validators, 3)

	require.NoError(s.Ledger().SetHeight(16))
	actual, err = s.ActualConfig()
	require.NoError(err)
	require.Len(actual.Validators, 3)
	previous, err = s.PreviousConfig()
	require.NoError(err)
	require.Len(previous.Validators, 4)

	byHeight, err := s.ConfigByHeight(3)
	require.NoError(err)
	require.Len(byHeight.Validators, 4)
}

func TestConfigErrors(t *testing.T) {
	require := require.New(t)

	missing := newSchema()
	require.NoError(missing.Ledger().CommitConfiguration(&ledger.Configuration{}))
	_, err := missing.ActualConfig()
	require.ErrorIs(err, ErrConfigNotFound)

	malformed := newSchema()
	commitConfig(t, malformed, 0, []byte(`{"validators": 7}`))
	_, err = malformed.ActualConfig()
	require.ErrorIs(err, config.ErrInvalidConfig)

	_, err = newSchema().ActualConfig()
	require.ErrorIs(err, ledger.ErrNoConfiguration)
}

func TestStateHash(t *testing.T) {
	require := require.New(t)

	s := newSchema()
	cfg := newConfig(t, 3)
	payload, err := cfg.Bytes()
	require.NoError(err)
	commitConfig(t, s, 0, payload)
	require.NoError(s.CreateGenesisConfig(cfg))

	hashes, err := s.StateHash()
	require.NoError(err)
	require.Len(hashes, 3)
	// identical logs summarize identically
	require.Equal(hashes[0], hashes[1])
	require.NotEqual(ids.Empty, hashes[0])

	tx := payTo(t, []byte{txscript.OP_TRUE}, 1, "next")
	require.NoError(s.AddLect(cfg.Validators[1], tx, ids.GenerateTestID()))

	updated, err := s.StateHash()
	require.NoError(err)
	require.Equal(hashes[0], updated[0])
	require.NotEqual(hashes[1], updated[1])
}

func TestListRootHash(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	empty := newList(db, []byte("empty"))
	root, err := empty.RootHash()
	require.NoError(err)
	require.Equal(ids.Empty, root)

	a := newList(db, []byte("a"))
	b := newList(db, []byte("b"))
	for i := 0; i < 3; i++ {
		_, err := a.Push([]byte{byte(i)})
		require.NoError(err)
		_, err = b.Push([]byte{byte(i)})
		require.NoError(err)
	}
	rootA, err := a.RootHash()
	require.NoError(err)
	rootB, err := b.RootHash()
	require.NoError(err)
	require.Equal(rootA, rootB)

	_, err = b.Push([]byte{3})
	require.NoError(err)
	rootB, err = b.RootHash()
	require.NoError(err)
	require.NotEqual(rootA, rootB)
}
