// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fund

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/pflag"
)

const (
	ConfigKey = "config"
	NodeKey   = "node"
	AmountKey = "amount"
	UpdateKey = "update"
)

var errNoAmount = errors.New("amount must be positive")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "anchoring.json", "Path of the anchoring configuration")
	flags.String(NodeKey, "node-0.json", "Path of a node configuration holding the bitcoind connection")
	flags.Int64(AmountKey, 100000, "Amount in satoshi paid to the anchoring address")
	flags.Bool(UpdateKey, false, "Store the funding transaction in the anchoring configuration")
}

type Config struct {
	ConfigPath string
	NodePath   string
	Amount     btcutil.Amount
	Update     bool
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	configPath, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}

	nodePath, err := flags.GetString(NodeKey)
	if err != nil {
		return nil, err
	}

	amount, err := flags.GetInt64(AmountKey)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errNoAmount
	}

	update, err := flags.GetBool(UpdateKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		ConfigPath: configPath,
		NodePath:   nodePath,
		Amount:     btcutil.Amount(amount),
		Update:     update,
	}, nil
}
