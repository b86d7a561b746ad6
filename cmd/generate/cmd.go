// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package generate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
)

const (
	AnchoringFile = "anchoring.json"

	perms = 0o600
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "generate-config",
		Short: "Generates anchoring keys and the configuration files of every validator",
		RunE:  generateFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func generateFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	cfg, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	anchoring := cfg.Anchoring
	params := anchoring.Params()
	for i := 0; i < cfg.Validators; i++ {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			return err
		}
		wif, err := btc.EncodeWIF(key, params)
		if err != nil {
			return err
		}
		anchoring.Validators = append(anchoring.Validators, btc.NewPublicKey(key.PubKey()))

		node := config.NodeConfig{
			RPC:         cfg.RPC,
			PrivateKeys: []string{wif},
		}
		if err := write(filepath.Join(cfg.OutputDir, NodeFile(i)), &node); err != nil {
			return err
		}
	}
	if err := anchoring.Validate(); err != nil {
		return err
	}
	if err := write(filepath.Join(cfg.OutputDir, AnchoringFile), &anchoring); err != nil {
		return err
	}

	addr, err := anchoring.Address()
	if err != nil {
		return err
	}
	log.Printf("generated %d validators, anchoring address %s\n", cfg.Validators, addr)
	return nil
}

// NodeFile is the name of the node configuration of validator i.
func NodeFile(i int) string {
	return fmt.Sprintf("node-%d.json", i)
}

func write(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, perms)
}
