// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/luxfi/anchoring/btc"
)

var (
	ErrInvalidRPC      = errors.New("invalid bitcoin rpc configuration")
	ErrNoPrivateKeys   = errors.New("no anchoring private keys")
	ErrInvalidInterval = errors.New("invalid retry configuration")
)

// RPC holds the connection settings of the local bitcoind.
type RPC struct {
	Host          string        `json:"host"`
	Username      string        `json:"username"`
	Password      string        `json:"password"`
	MaxRetries    uint          `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`
}

// NodeConfig is the validator-local part of the configuration. It never
// leaves the node.
type NodeConfig struct {
	RPC RPC `json:"rpc"`
	// PrivateKeys are WIF encoded anchoring keys. A node may keep keys for
	// several validator sets while funds move between addresses.
	PrivateKeys []string `json:"private_keys"`
}

// DefaultNodeConfig returns a node config with default values.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		RPC: RPC{
			Host:          "127.0.0.1:18332",
			MaxRetries:    5,
			RetryInterval: 500 * time.Millisecond,
		},
	}
}

// Validate validates the configuration.
func (c *NodeConfig) Validate() error {
	if c.RPC.Host == "" {
		return ErrInvalidRPC
	}
	if c.RPC.MaxRetries == 0 || c.RPC.RetryInterval <= 0 {
		return ErrInvalidInterval
	}
	if len(c.PrivateKeys) == 0 {
		return ErrNoPrivateKeys
	}
	_, err := c.Keys()
	return err
}

// Keys decodes the private keys.
func (c *NodeConfig) Keys() ([]*btcec.PrivateKey, error) {
	keys := make([]*btcec.PrivateKey, len(c.PrivateKeys))
	for i, wif := range c.PrivateKeys {
		key, err := btc.ParseWIF(wif)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// ParseNodeConfig parses configuration from JSON bytes.
func ParseNodeConfig(data []byte) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return NodeConfig{}, err
	}

	return cfg, nil
}
