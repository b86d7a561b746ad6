// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cenkalti/backoff/v5"
	"github.com/luxfi/log"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
)

var _ Relay = (*Client)(nil)

// Client is a Relay backed by the JSON-RPC interface of a bitcoind node.
// Transient failures are retried with exponential backoff.
type Client struct {
	log    log.Logger
	config config.RPC
	rpc    *rpcclient.Client
}

func NewClient(log log.Logger, cfg config.RPC) (*Client, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.Username,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create bitcoin rpc client: %w", err)
	}
	return &Client{
		log:    log,
		config: cfg,
		rpc:    rpc,
	}, nil
}

func (c *Client) SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) (*btc.Tx, error) {
	id, err := retry(ctx, c, "sendtoaddress", func() (*chainhash.Hash, error) {
		return c.rpc.SendToAddress(addr, amount)
	})
	if err != nil {
		return nil, err
	}
	info, err := c.TransactionInfo(ctx, *id)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("sent transaction %s is unknown to the node", id)
	}
	return info.Tx, nil
}

func (c *Client) TransactionInfo(ctx context.Context, id btc.TxID) (*TxInfo, error) {
	res, err := retry(ctx, c, "getrawtransaction", func() (*btcjson.TxRawResult, error) {
		res, err := c.rpc.GetRawTransactionVerbose(&id)
		if isNotFound(err) {
			return nil, nil
		}
		return res, err
	})
	if err != nil || res == nil {
		return nil, err
	}
	tx, err := btc.ParseTxHex(res.Hex)
	if err != nil {
		return nil, err
	}
	return &TxInfo{
		Tx:            tx,
		Confirmations: res.Confirmations,
	}, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *btc.Tx) (btc.TxID, error) {
	id, err := retry(ctx, c, "sendrawtransaction", func() (*chainhash.Hash, error) {
		return c.rpc.SendRawTransaction(tx.Msg(), false)
	})
	if err != nil {
		return btc.TxID{}, err
	}
	return *id, nil
}

func (c *Client) WatchAddress(ctx context.Context, addr btcutil.Address, rescan bool) error {
	_, err := retry(ctx, c, "importaddress", func() (struct{}, error) {
		return struct{}{}, c.rpc.ImportAddressRescan(addr.EncodeAddress(), "", rescan)
	})
	return err
}

// Close shuts down the underlying connection.
func (c *Client) Close() {
	c.rpc.Shutdown()
}

// retry calls op until it succeeds, fails with an RPC error or runs out of
// attempts. RPC errors are answers from the node and are never retried.
func retry[T any](ctx context.Context, c *Client, method string, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err == nil {
			return res, nil
		}
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) {
			return res, backoff.Permanent(err)
		}
		c.log.Debug("bitcoin rpc call failed",
			log.String("method", method),
			log.Err(err),
		)
		return res, err
	},
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     c.config.RetryInterval,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         backoff.DefaultMaxInterval,
		}),
		backoff.WithMaxTries(c.config.MaxRetries+1),
	)
}

func isNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCNoTxInfo
}
