// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package address

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/anchoring/config"
)

const ConfigKey = "config"

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "address",
		Short: "Prints the anchoring address of a configuration",
		RunE:  addressFunc,
	}
	c.Flags().String(ConfigKey, "anchoring.json", "Path of the anchoring configuration")
	return c
}

func addressFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		return err
	}
	path, err := flags.GetString(ConfigKey)
	if err != nil {
		return err
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	addr, err := cfg.Address()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), addr)
	return err
}

// Load reads and validates an anchoring configuration file.
func Load(path string) (*config.AnchoringConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.Parse(b)
}
