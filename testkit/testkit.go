// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testkit runs a set of anchoring validator nodes against a single
// in-memory ledger and an in-memory Bitcoin network.
package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/ledger"
	"github.com/luxfi/anchoring/metrics"
	"github.com/luxfi/anchoring/relay/relaytest"
	"github.com/luxfi/anchoring/schema"
	"github.com/luxfi/anchoring/service"
	"github.com/luxfi/anchoring/txs"
)

var errNoValidators = errors.New("no validators")

// Config of a test network.
type Config struct {
	Validators        int
	Frequency         uint64
	Funding           btcutil.Amount
	TransactionFee    uint64
	UTXOConfirmations uint64
}

func DefaultConfig() Config {
	return Config{
		Validators:        4,
		Frequency:         4,
		Funding:           70000,
		TransactionFee:    10,
		UTXOConfirmations: 1,
	}
}

// Node is one validator node holding a single anchoring key.
type Node struct {
	Key     *btcec.PrivateKey
	Handler *service.Handler

	online bool
}

// PublicKey returns the anchoring key of the node.
func (n *Node) PublicKey() btc.PublicKey {
	return btc.NewPublicKey(n.Key.PubKey())
}

type TestKit struct {
	log      log.Logger
	db       database.Database
	executor *service.Executor
	relay    *relaytest.Network

	nodes []*Node
	pool  []txs.Message
}

// New creates the genesis block of a network of cfg.Validators nodes. The
// genesis configuration is funded through the in-memory Bitcoin network.
// Nodes first act after the next block.
func New(ctx context.Context, cfg Config) (*TestKit, error) {
	if cfg.Validators <= 0 {
		return nil, errNoValidators
	}
	executorMetrics, err := metrics.New("anchoring", prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	executor, err := service.NewExecutor(log.NoLog{}, executorMetrics)
	if err != nil {
		return nil, err
	}
	tk := &TestKit{
		log:      log.NoLog{},
		db:       memdb.New(),
		executor: executor,
		relay:    relaytest.New(),
	}

	genesis := config.DefaultConfig()
	genesis.Network = config.Regtest
	genesis.Frequency = cfg.Frequency
	genesis.TransactionFee = cfg.TransactionFee
	genesis.UTXOConfirmations = cfg.UTXOConfirmations
	for i := 0; i < cfg.Validators; i++ {
		node, err := tk.AddNode()
		if err != nil {
			return nil, err
		}
		genesis.Validators = append(genesis.Validators, node.PublicKey())
	}
	genesis.FundingTx, err = tk.Fund(ctx, &genesis, cfg.Funding)
	if err != nil {
		return nil, err
	}
	if err := genesis.Validate(); err != nil {
		return nil, err
	}

	view := versiondb.New(tk.db)
	store := ledger.New(view)
	if err := commitConfiguration(store, &genesis, 0); err != nil {
		return nil, err
	}
	if err := tk.executor.Genesis(schema.New(view, tk.log), &genesis); err != nil {
		return nil, err
	}
	if err := store.SetHeight(0); err != nil {
		return nil, err
	}
	if err := store.PutBlockHash(0, blockHash(0)); err != nil {
		return nil, err
	}
	return tk, view.Commit()
}

// AddNode starts a node with a fresh key. The node is online but signs only
// once its key belongs to an anchoring configuration.
func (tk *TestKit) AddNode() (*Node, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	handler, err := tk.newHandler(key)
	if err != nil {
		return nil, err
	}
	node := &Node{
		Key:     key,
		Handler: handler,
		online:  true,
	}
	tk.nodes = append(tk.nodes, node)
	return node, nil
}

func (tk *TestKit) newHandler(key *btcec.PrivateKey) (*service.Handler, error) {
	nodeMetrics, err := metrics.New("anchoring", prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return service.NewHandler(tk.log, nodeMetrics, tk.relay, []*btcec.PrivateKey{key})
}

// Restart replaces the handler of node i with a fresh one holding the same
// key. Everything the node kept in memory is lost.
func (tk *TestKit) Restart(i int) error {
	node := tk.nodes[i]
	handler, err := tk.newHandler(node.Key)
	if err != nil {
		return err
	}
	node.Handler = handler
	return nil
}

// Fund pays amount to the anchoring address of cfg and mines the payment.
func (tk *TestKit) Fund(ctx context.Context, cfg *config.AnchoringConfig, amount btcutil.Amount) (*btc.Tx, error) {
	script, err := cfg.RedeemScript()
	if err != nil {
		return nil, err
	}
	addr, err := script.Address(cfg.Params())
	if err != nil {
		return nil, err
	}
	tx, err := tk.relay.SendToAddress(ctx, addr, amount)
	if err != nil {
		return nil, err
	}
	tk.relay.Mine(1)
	return tx, nil
}

// Nodes returns every node in the order they were added.
func (tk *TestKit) Nodes() []*Node {
	return tk.nodes
}

// SetOnline keeps only the first n nodes running.
func (tk *TestKit) SetOnline(n int) {
	for i, node := range tk.nodes {
		node.online = i < n
	}
}

// SetNodeOnline starts or stops node i.
func (tk *TestKit) SetNodeOnline(i int, online bool) {
	tk.nodes[i].online = online
}

// DropPending discards the messages submitted since the last block, as if
// the ledger lost them.
func (tk *TestKit) DropPending() []txs.Message {
	dropped := tk.pool
	tk.pool = nil
	return dropped
}

func (tk *TestKit) Relay() *relaytest.Network {
	return tk.relay
}

// Schema returns a read view of the committed state.
func (tk *TestKit) Schema() *schema.Schema {
	return schema.New(tk.db, tk.log)
}

func (tk *TestKit) Height() (uint64, error) {
	return ledger.New(tk.db).Height()
}

func (tk *TestKit) ActualConfig() (*config.AnchoringConfig, error) {
	return tk.Schema().ActualConfig()
}

// CommitConfigurationChange schedules cfg to become actual at actualFrom.
func (tk *TestKit) CommitConfigurationChange(cfg *config.AnchoringConfig, actualFrom uint64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return commitConfiguration(ledger.New(tk.db), cfg, actualFrom)
}

// LastAnchoringTx returns the agreed lect if it carries a checkpoint.
func (tk *TestKit) LastAnchoringTx() (*btc.Tx, error) {
	s := tk.Schema()
	actual, err := s.ActualConfig()
	if err != nil {
		return nil, err
	}
	lect, err := s.CollectLects(actual)
	if err != nil || lect == nil {
		return nil, err
	}
	if _, ok := lect.Payload(); !ok {
		return nil, nil
	}
	return lect, nil
}

// CreateBlock commits the pending messages in a new block, mines a Bitcoin
// block and lets the online nodes react.
func (tk *TestKit) CreateBlock(ctx context.Context) error {
	height, err := tk.Height()
	if err != nil {
		return err
	}
	height++

	view := versiondb.New(tk.db)
	for _, msg := range tk.pool {
		msgView := versiondb.New(view)
		if err := tk.executor.Execute(schema.New(msgView, tk.log), msg); err != nil {
			continue
		}
		if err := msgView.Commit(); err != nil {
			return err
		}
	}
	tk.pool = nil

	store := ledger.New(view)
	if err := store.SetHeight(height); err != nil {
		return err
	}
	if err := store.PutBlockHash(height, blockHash(height)); err != nil {
		return err
	}
	if err := view.Commit(); err != nil {
		return err
	}
	tk.relay.Mine(1)
	return tk.afterCommit(ctx)
}

// CreateBlocksUntil creates blocks until the ledger reaches height.
func (tk *TestKit) CreateBlocksUntil(ctx context.Context, height uint64) error {
	for {
		current, err := tk.Height()
		if err != nil || current >= height {
			return err
		}
		if err := tk.CreateBlock(ctx); err != nil {
			return err
		}
	}
}

func (tk *TestKit) afterCommit(ctx context.Context) error {
	for _, node := range tk.nodes {
		if !node.online {
			continue
		}
		msgs, err := node.Handler.AfterCommit(ctx, tk.Schema())
		if err != nil {
			return err
		}
		tk.pool = append(tk.pool, msgs...)
	}
	return nil
}

func commitConfiguration(store *ledger.Store, cfg *config.AnchoringConfig, actualFrom uint64) error {
	payload, err := cfg.Bytes()
	if err != nil {
		return fmt.Errorf("couldn't encode anchoring configuration: %w", err)
	}
	return store.CommitConfiguration(&ledger.Configuration{
		ActualFrom: actualFrom,
		Services: map[string]json.RawMessage{
			anchoring.ServiceName: payload,
		},
	})
}

func blockHash(height uint64) ids.ID {
	return hash.ComputeHash256Array(database.PackUInt64(height))
}
