// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/hashicorp/golang-lru"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/builder"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/metrics"
	"github.com/luxfi/anchoring/relay"
	"github.com/luxfi/anchoring/schema"
	"github.com/luxfi/anchoring/signing"
	"github.com/luxfi/anchoring/txs"
)

const (
	proposalsCacheSize = 16
	sentCacheSize      = 1024

	// resubmitDelay is the number of blocks after which a signature or lect
	// report that has not been committed is emitted again.
	resubmitDelay = 2
)

// Handler is the node side of the service. After every committed block it
// observes Bitcoin, reports lects, signs the next anchoring transaction and
// broadcasts it once fully signed. The returned messages are meant to be
// submitted to the ledger.
type Handler struct {
	log     log.Logger
	metrics metrics.Metrics
	relay   relay.Relay
	keys    []*btcec.PrivateKey

	// proposals remembers the ids of the latest built proposals, oldest
	// first. Their confirmation on Bitcoin advances the lect.
	proposals *lru.Cache
	// signed maps the signature slots already submitted to the height they
	// were submitted at.
	signed *lru.Cache
	// reported maps lect transaction ids to the report that was submitted
	// for them.
	reported *lru.Cache
	watched  set.Set[string]

	lock  sync.RWMutex
	state anchoring.State
}

type report struct {
	count  uint64
	height uint64
}

func NewHandler(
	log log.Logger,
	metrics metrics.Metrics,
	relay relay.Relay,
	keys []*btcec.PrivateKey,
) (*Handler, error) {
	proposals, err := lru.New(proposalsCacheSize)
	if err != nil {
		return nil, err
	}
	signed, err := lru.New(sentCacheSize)
	if err != nil {
		return nil, err
	}
	reported, err := lru.New(sentCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{
		log:       log,
		metrics:   metrics,
		relay:     relay,
		keys:      keys,
		proposals: proposals,
		signed:    signed,
		reported:  reported,
		watched:   set.NewSet[string](2),
		state:     anchoring.Waiting,
	}, nil
}

// State returns what the node did after the latest commit.
func (h *Handler) State() anchoring.State {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return h.state
}

func (h *Handler) setState(state anchoring.State) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.state != state {
		h.log.Info("anchoring state changed",
			log.Stringer("from", h.state),
			log.Stringer("to", state),
		)
	}
	h.state = state
}

// AfterCommit runs against the committed state. Relay failures are logged
// and retried after the next commit.
func (h *Handler) AfterCommit(ctx context.Context, s *schema.Schema) ([]txs.Message, error) {
	height, err := s.Ledger().Height()
	if err != nil {
		return nil, err
	}
	actual, err := s.ActualConfig()
	if err != nil {
		return nil, err
	}
	previous, err := s.PreviousConfig()
	if err != nil {
		return nil, err
	}
	following, err := s.FollowingConfig()
	if err != nil {
		return nil, err
	}

	if err := h.watch(ctx, actual, following); err != nil {
		h.relayFailed("couldn't watch anchoring address", err)
	}

	var msgs []txs.Message
	lect, err := h.observe(ctx, s, height, actual, previous)
	if err != nil {
		return nil, err
	}
	if lect != nil {
		msgs = append(msgs, lect)
	}

	proposal, err := builder.Next(s)
	switch {
	case errors.Is(err, builder.ErrInsufficientFunds), errors.Is(err, builder.ErrLectNotSpendable):
		h.log.Error("couldn't build anchoring transaction",
			log.Err(err),
		)
		h.setState(anchoring.Waiting)
		return msgs, nil
	case err != nil:
		return nil, err
	case proposal == nil:
		if following != nil {
			h.setState(anchoring.Transition)
		} else {
			h.setState(anchoring.Waiting)
		}
		return msgs, nil
	}

	if proposal.Kind == builder.Transition {
		h.setState(anchoring.Transition)
	} else {
		h.setState(anchoring.Anchoring)
	}
	sigs, err := h.sign(ctx, s, height, proposal, actual)
	if err != nil {
		return nil, err
	}
	return append(msgs, sigs...), nil
}

// validator returns the node key that belongs to the validator set of cfg.
func (h *Handler) validator(cfg *config.AnchoringConfig) (*btcec.PrivateKey, uint32, bool) {
	for _, key := range h.keys {
		if index, ok := cfg.ValidatorIndex(btc.NewPublicKey(key.PubKey())); ok {
			return key, index, true
		}
	}
	return nil, 0, false
}

func (h *Handler) watch(ctx context.Context, configs ...*config.AnchoringConfig) error {
	var addrs []btcutil.Address
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		script, err := cfg.RedeemScript()
		if err != nil {
			return err
		}
		addr, err := script.Address(cfg.Params())
		if err != nil {
			return err
		}
		if !h.watched.Contains(addr.EncodeAddress()) {
			addrs = append(addrs, addr)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		g.Go(func() error {
			return h.relay.WatchAddress(ctx, addr, true)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, addr := range addrs {
		h.watched.Add(addr.EncodeAddress())
	}
	return nil
}

// observe returns a lect report if a remembered proposal that spends the
// node's current lect is known to Bitcoin. A validator with an empty log
// adopts the lect agreed by the previous validator set, and a validator whose
// log never contained the agreed lect adopts it once Bitcoin knows it.
func (h *Handler) observe(
	ctx context.Context,
	s *schema.Schema,
	height uint64,
	actual *config.AnchoringConfig,
	previous *config.AnchoringConfig,
) (*txs.Lect, error) {
	_, index, ok := h.validator(actual)
	if !ok {
		return nil, nil
	}
	validator := actual.Validators[index]
	count, err := s.LectsLen(validator)
	if err != nil {
		return nil, err
	}
	current, err := s.Lect(validator)
	if err != nil {
		return nil, err
	}
	if current == nil {
		if previous == nil {
			return nil, nil
		}
		agreed, err := s.CollectLects(previous)
		if err != nil || agreed == nil {
			return nil, err
		}
		return h.report(index, agreed, count, height)
	}

	agreed, err := s.CollectLects(actual)
	if err != nil {
		return nil, err
	}
	if agreed != nil && !agreed.Equal(current) {
		_, seen, err := s.FindLectPosition(validator, agreed.ID())
		if err != nil {
			return nil, err
		}
		if !seen {
			return h.catchUp(ctx, index, agreed, count, height)
		}
	}

	keys := h.proposals.Keys()
	infos := make([]*relay.TxInfo, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		id := key.(btc.TxID)
		g.Go(func() error {
			info, err := h.relay.TransactionInfo(gctx, id)
			infos[i] = info
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.relayFailed("couldn't look up anchoring transaction", err)
		return nil, nil
	}

	currentID := current.ID()
	for _, info := range infos {
		if info == nil || info.Tx.ID() == currentID {
			continue
		}
		if prevID, ok := info.Tx.PrevTxID(); ok && prevID == currentID {
			return h.report(index, info.Tx, count, height)
		}
	}
	return nil, nil
}

// catchUp reports the agreed lect of a validator that missed it.
func (h *Handler) catchUp(ctx context.Context, index uint32, agreed *btc.Tx, count uint64, height uint64) (*txs.Lect, error) {
	info, err := h.relay.TransactionInfo(ctx, agreed.ID())
	if err != nil {
		h.relayFailed("couldn't look up agreed anchoring transaction", err)
		return nil, nil
	}
	if info == nil {
		return nil, nil
	}
	h.log.Info("catching up with agreed lect",
		log.Uint32("validator", index),
		log.Stringer("txID", agreed.ID()),
	)
	return h.report(index, agreed, count, height)
}

func (h *Handler) report(index uint32, tx *btc.Tx, count uint64, height uint64) (*txs.Lect, error) {
	if prev, ok := h.reported.Get(tx.ID()); ok {
		if r := prev.(report); r.count == count && height < r.height+resubmitDelay {
			return nil, nil
		}
	}
	msg, err := txs.NewLect(index, tx, count)
	if err != nil {
		return nil, err
	}
	h.reported.Add(tx.ID(), report{
		count:  count,
		height: height,
	})
	h.log.Info("reporting lect",
		log.Uint32("validator", index),
		log.Stringer("txID", tx.ID()),
		log.Uint64("count", count),
	)
	return msg, nil
}

// sign returns the signatures of the node that are missing from the
// committed state and broadcasts the proposal once every input is signed.
// A signature is submitted again when it is still missing resubmitDelay
// blocks later.
func (h *Handler) sign(
	ctx context.Context,
	s *schema.Schema,
	height uint64,
	proposal *builder.Proposal,
	actual *config.AnchoringConfig,
) ([]txs.Message, error) {
	id := proposal.Tx.ID()
	if !h.proposals.Contains(id) {
		h.proposals.Add(id, struct{}{})
		h.metrics.IncProposals()
		h.log.Info("proposing anchoring transaction",
			log.Stringer("kind", proposal.Kind),
			log.Stringer("txID", id),
		)
	}

	sigs, err := s.Signatures(id)
	if err != nil {
		return nil, err
	}
	collection := signing.NewCollection(proposal.Tx, proposal.Config, sigs)
	if collection.Status() == signing.Complete {
		h.broadcast(ctx, collection)
		return nil, nil
	}

	key, index, ok := h.validator(proposal.Config)
	if !ok {
		return nil, nil
	}
	confirmed, err := h.fundingConfirmed(ctx, proposal, actual)
	if err != nil {
		h.relayFailed("couldn't look up funding transaction", err)
		return nil, nil
	}
	if !confirmed {
		return nil, nil
	}

	script, err := proposal.Config.RedeemScript()
	if err != nil {
		return nil, err
	}
	var msgs []txs.Message
	for input := 0; input < proposal.Tx.NumInputs(); input++ {
		if collection.Signed(input, index) {
			continue
		}
		slot := string(txs.SlotKey(id, index, uint32(input)))
		if at, ok := h.signed.Get(slot); ok && height < at.(uint64)+resubmitDelay {
			continue
		}
		sig, err := btc.SignInput(proposal.Tx, proposal.PrevOuts, input, script, key)
		if err != nil {
			return nil, err
		}
		msg, err := txs.NewSignature(index, uint32(input), proposal.Tx, sig)
		if err != nil {
			return nil, err
		}
		h.signed.Add(slot, height)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// fundingConfirmed reports whether every funding input of proposal is
// buried deep enough on Bitcoin.
func (h *Handler) fundingConfirmed(ctx context.Context, proposal *builder.Proposal, actual *config.AnchoringConfig) (bool, error) {
	inputs := proposal.Tx.Inputs()
	for _, outpoint := range inputs[1:] {
		info, err := h.relay.TransactionInfo(ctx, outpoint.Hash)
		if err != nil {
			return false, err
		}
		if info == nil || info.Confirmations < actual.UTXOConfirmations {
			h.log.Debug("waiting for funding confirmations",
				log.Stringer("txID", outpoint.Hash),
				log.Uint64("required", actual.UTXOConfirmations),
			)
			return false, nil
		}
	}
	return true, nil
}

func (h *Handler) broadcast(ctx context.Context, collection *signing.Collection) {
	tx, err := collection.Assemble()
	if err != nil {
		h.log.Error("couldn't assemble anchoring transaction",
			log.Err(err),
		)
		return
	}
	info, err := h.relay.TransactionInfo(ctx, tx.ID())
	if err != nil {
		h.relayFailed("couldn't look up anchoring transaction", err)
		return
	}
	if info != nil {
		return
	}
	if _, err := h.relay.SendTransaction(ctx, tx); err != nil {
		h.relayFailed("couldn't send anchoring transaction", err)
		return
	}
	h.metrics.IncBroadcasts()
	h.log.Info("sent anchoring transaction",
		log.Stringer("txID", tx.ID()),
	)
}

func (h *Handler) relayFailed(msg string, err error) {
	h.metrics.IncRelayErrors()
	h.log.Warn(msg,
		log.Err(err),
	)
}
