// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package schema owns every table of the anchoring service. A Schema is
// constructed per database view and keeps no state besides the view.
package schema

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/ledger"
	"github.com/luxfi/anchoring/txs"
	"github.com/luxfi/anchoring/utils/wrappers"
)

// Table tags. Every key is prefixed with the service id and one of these.
const (
	signaturesTag      byte = 2
	lectsTag           byte = 3
	lectIndexesTag     byte = 4
	knownAddressesTag  byte = 5
	knownSignaturesTag byte = 6
	knownTxsTag        byte = 7
	spentOutputsTag    byte = 8
)

var (
	ErrConflictingLects = errors.New("more than one transaction reached the lect majority")
	ErrNoFunding        = errors.New("genesis configuration has no funding transaction")

	present = []byte{}
)

// LectContent is one entry of a validator's lect log.
type LectContent struct {
	// OriginHash is the id of the lect message that appended the entry, or
	// ids.Empty for the genesis entry.
	OriginHash ids.ID `serialize:"true"`
	Tx         []byte `serialize:"true"`
}

// Schema gives typed access to the anchoring tables stored in a ledger view.
type Schema struct {
	log    log.Logger
	ledger *ledger.Store

	signatures      database.Database
	lects           database.Database
	lectIndexes     database.Database
	knownAddresses  database.Database
	knownSignatures database.Database
	knownTxs        database.Database
	spentOutputs    database.Database
}

// New returns the anchoring schema over db. Writes go to db directly, so
// callers pass the view of the block being executed.
func New(db database.Database, log log.Logger) *Schema {
	table := func(tag byte) database.Database {
		return prefixdb.New([]byte{anchoring.ServiceID, tag}, db)
	}
	return &Schema{
		log:             log,
		ledger:          ledger.New(db),
		signatures:      table(signaturesTag),
		lects:           table(lectsTag),
		lectIndexes:     table(lectIndexesTag),
		knownAddresses:  table(knownAddressesTag),
		knownSignatures: table(knownSignaturesTag),
		knownTxs:        table(knownTxsTag),
		spentOutputs:    table(spentOutputsTag),
	}
}

// Ledger returns the host ledger state visible through the same view.
func (s *Schema) Ledger() *ledger.Store {
	return s.ledger
}

func (s *Schema) lectList(validator btc.PublicKey) *list {
	return newList(s.lects, validator.Bytes())
}

func (s *Schema) lectIndex(validator btc.PublicKey) database.Database {
	return prefixdb.New(validator.Bytes(), s.lectIndexes)
}

// AddLect appends tx to the validator's lect log, registers it as a known
// transaction and indexes its position.
func (s *Schema) AddLect(validator btc.PublicKey, tx *btc.Tx, originHash ids.ID) error {
	b, err := Codec.Marshal(CodecVersion, &LectContent{
		OriginHash: originHash,
		Tx:         tx.Bytes(),
	})
	if err != nil {
		return err
	}
	index, err := s.lectList(validator).Push(b)
	if err != nil {
		return err
	}
	txID := tx.ID()
	if err := s.knownTxs.Put(txID[:], tx.Bytes()); err != nil {
		return err
	}
	return database.PutUInt64(s.lectIndex(validator), txID[:], index)
}

// LectsLen returns the length of the validator's lect log.
func (s *Schema) LectsLen(validator btc.PublicKey) (uint64, error) {
	return s.lectList(validator).Len()
}

// LectAt returns the entry at index of the validator's lect log.
func (s *Schema) LectAt(validator btc.PublicKey, index uint64) (*LectContent, error) {
	b, err := s.lectList(validator).Get(index)
	if err != nil {
		return nil, err
	}
	return parseLectContent(b)
}

// Lect returns the latest lect of the validator, or nil.
func (s *Schema) Lect(validator btc.PublicKey) (*btc.Tx, error) {
	return s.lectFromEnd(validator, 0)
}

// PrevLect returns the lect preceding the latest one, or nil.
func (s *Schema) PrevLect(validator btc.PublicKey) (*btc.Tx, error) {
	return s.lectFromEnd(validator, 1)
}

func (s *Schema) lectFromEnd(validator btc.PublicKey, offset uint64) (*btc.Tx, error) {
	b, ok, err := s.lectList(validator).FromEnd(offset)
	if err != nil || !ok {
		return nil, err
	}
	content, err := parseLectContent(b)
	if err != nil {
		return nil, err
	}
	return btc.ParseTx(content.Tx)
}

// FindLectPosition returns the position of txID in the validator's lect log.
func (s *Schema) FindLectPosition(validator btc.PublicKey, txID btc.TxID) (uint64, bool, error) {
	index, err := database.GetUInt64(s.lectIndex(validator), txID[:])
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	default:
		return index, true, nil
	}
}

// KnownTx returns a transaction that was ever reported as a lect, or nil.
func (s *Schema) KnownTx(txID btc.TxID) (*btc.Tx, error) {
	b, err := s.knownTxs.Get(txID[:])
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return btc.ParseTx(b)
	}
}

// AddKnownAddress registers the bech32 encoding of an anchoring multisig
// address.
func (s *Schema) AddKnownAddress(addr string) error {
	return s.knownAddresses.Put([]byte(addr), present)
}

// IsAddressKnown reports whether addr was ever registered.
func (s *Schema) IsAddressKnown(addr string) (bool, error) {
	return s.knownAddresses.Has([]byte(addr))
}

// AddKnownSignature stores msg unless a signature for the same transaction,
// validator and input was already stored. It reports whether msg was
// stored.
func (s *Schema) AddKnownSignature(msg *txs.Signature) (bool, error) {
	proposal, err := msg.Proposal()
	if err != nil {
		return false, err
	}
	txID := proposal.ID()
	key := txs.SlotKey(txID, msg.Validator, msg.Input)
	has, err := s.knownSignatures.Has(key)
	if err != nil {
		return false, err
	}
	if has {
		s.log.Warn("dropping duplicate anchoring signature",
			log.Stringer("txID", txID),
			log.Uint32("validator", msg.Validator),
			log.Uint32("input", msg.Input),
		)
		return false, nil
	}
	if err := s.knownSignatures.Put(key, msg.Bytes()); err != nil {
		return false, err
	}
	_, err = newList(s.signatures, txID[:]).Push(msg.Bytes())
	return err == nil, err
}

// Signatures returns the signatures collected for a proposal in the order
// they were accepted.
func (s *Schema) Signatures(txID btc.TxID) ([]*txs.Signature, error) {
	items, err := newList(s.signatures, txID[:]).Items()
	if err != nil {
		return nil, err
	}
	sigs := make([]*txs.Signature, len(items))
	for i, b := range items {
		sigs[i], err = txs.ParseSignature(b)
		if err != nil {
			return nil, err
		}
	}
	return sigs, nil
}

// MarkSpent records every outpoint consumed by tx.
func (s *Schema) MarkSpent(tx *btc.Tx) error {
	txID := tx.ID()
	for _, outpoint := range tx.Inputs() {
		if err := s.spentOutputs.Put(outpointKey(outpoint), txID[:]); err != nil {
			return err
		}
	}
	return nil
}

// IsSpent reports whether an agreed anchoring transaction consumed outpoint.
func (s *Schema) IsSpent(outpoint wire.OutPoint) (bool, error) {
	return s.spentOutputs.Has(outpointKey(outpoint))
}

// StateHash returns the Merkle root of every actual validator's lect log.
func (s *Schema) StateHash() ([]ids.ID, error) {
	cfg, err := s.ActualConfig()
	if err != nil {
		return nil, err
	}
	hashes := make([]ids.ID, len(cfg.Validators))
	for i, validator := range cfg.Validators {
		hashes[i], err = s.lectList(validator).RootHash()
		if err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// CreateGenesisConfig registers the initial anchoring address and seeds
// every validator's lect log with the funding transaction.
func (s *Schema) CreateGenesisConfig(cfg *config.AnchoringConfig) error {
	if cfg.FundingTx == nil {
		return ErrNoFunding
	}
	addr, err := cfg.Address()
	if err != nil {
		return err
	}
	if err := s.AddKnownAddress(addr); err != nil {
		return err
	}
	for _, validator := range cfg.Validators {
		if err := s.AddLect(validator, cfg.FundingTx, ids.Empty); err != nil {
			return err
		}
	}
	return nil
}

func parseLectContent(b []byte) (*LectContent, error) {
	content := &LectContent{}
	if _, err := Codec.Unmarshal(b, content); err != nil {
		return nil, fmt.Errorf("couldn't parse lect content: %w", err)
	}
	return content, nil
}

func outpointKey(outpoint wire.OutPoint) []byte {
	p := wrappers.Packer{
		MaxSize: len(outpoint.Hash) + wrappers.IntLen,
	}
	p.PackFixedBytes(outpoint.Hash[:])
	p.PackInt(outpoint.Index)
	return p.Bytes
}
