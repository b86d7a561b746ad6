// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package generate

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/luxfi/anchoring/config"
)

const (
	ValidatorsKey    = "validators"
	NetworkKey       = "network"
	FrequencyKey     = "frequency"
	FeeKey           = "fee"
	ConfirmationsKey = "confirmations"
	RPCHostKey       = "rpc-host"
	RPCUserKey       = "rpc-user"
	RPCPasswordKey   = "rpc-password"
	OutputDirKey     = "output-dir"
)

var errNoValidators = errors.New("at least one validator is required")

func AddFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultConfig()
	nodeDefaults := config.DefaultNodeConfig()

	flags.Int(ValidatorsKey, 4, "Number of validators to generate anchoring keys for")
	flags.String(NetworkKey, string(defaults.Network), "Bitcoin network: mainnet, testnet or regtest")
	flags.Uint64(FrequencyKey, defaults.Frequency, "Anchoring interval in ledger blocks")
	flags.Uint64(FeeKey, defaults.TransactionFee, "Fee rate of anchoring transactions in satoshi per vbyte")
	flags.Uint64(ConfirmationsKey, defaults.UTXOConfirmations, "Confirmations required before a funding output is spent")
	flags.String(RPCHostKey, nodeDefaults.RPC.Host, "Host of the bitcoind JSON-RPC interface")
	flags.String(RPCUserKey, "", "bitcoind JSON-RPC username")
	flags.String(RPCPasswordKey, "", "bitcoind JSON-RPC password")
	flags.String(OutputDirKey, ".", "Directory the configuration files are written to")
}

type Config struct {
	Validators int
	Anchoring  config.AnchoringConfig
	RPC        config.RPC
	OutputDir  string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	validators, err := flags.GetInt(ValidatorsKey)
	if err != nil {
		return nil, err
	}
	if validators <= 0 {
		return nil, errNoValidators
	}

	network, err := flags.GetString(NetworkKey)
	if err != nil {
		return nil, err
	}
	if _, err := config.Network(network).Params(); err != nil {
		return nil, err
	}

	frequency, err := flags.GetUint64(FrequencyKey)
	if err != nil {
		return nil, err
	}

	fee, err := flags.GetUint64(FeeKey)
	if err != nil {
		return nil, err
	}

	confirmations, err := flags.GetUint64(ConfirmationsKey)
	if err != nil {
		return nil, err
	}

	host, err := flags.GetString(RPCHostKey)
	if err != nil {
		return nil, err
	}

	user, err := flags.GetString(RPCUserKey)
	if err != nil {
		return nil, err
	}

	password, err := flags.GetString(RPCPasswordKey)
	if err != nil {
		return nil, err
	}

	outputDir, err := flags.GetString(OutputDirKey)
	if err != nil {
		return nil, err
	}

	rpc := config.DefaultNodeConfig().RPC
	rpc.Host = host
	rpc.Username = user
	rpc.Password = password
	return &Config{
		Validators: validators,
		Anchoring: config.AnchoringConfig{
			Network:           config.Network(network),
			Frequency:         frequency,
			TransactionFee:    fee,
			UTXOConfirmations: confirmations,
		},
		RPC:       rpc,
		OutputDir: outputDir,
	}, nil
}
