// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fund

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/anchoring/cmd/address"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/relay"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "fund",
		Short: "Sends a funding transaction to the anchoring address",
		RunE:  fundFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func fundFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	cfg, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	anchoringCfg, err := address.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	nodeBytes, err := os.ReadFile(cfg.NodePath)
	if err != nil {
		return err
	}
	nodeCfg, err := config.ParseNodeConfig(nodeBytes)
	if err != nil {
		return err
	}

	logger := log.Root()
	client, err := relay.NewClient(logger, nodeCfg.RPC)
	if err != nil {
		return err
	}
	defer client.Close()

	script, err := anchoringCfg.RedeemScript()
	if err != nil {
		return err
	}
	addr, err := script.Address(anchoringCfg.Params())
	if err != nil {
		return err
	}
	tx, err := client.SendToAddress(c.Context(), addr, cfg.Amount)
	if err != nil {
		return err
	}
	logger.Info("sent funding transaction",
		log.Stringer("txID", tx.ID()),
		log.String("address", addr.EncodeAddress()),
		log.Uint64("amount", uint64(cfg.Amount)),
	)

	if _, err := fmt.Fprintln(c.OutOrStdout(), tx); err != nil {
		return err
	}
	if !cfg.Update {
		return nil
	}
	anchoringCfg.FundingTx = tx
	b, err := json.MarshalIndent(anchoringCfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.ConfigPath, b, 0o600)
}
