// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/anchoring/cmd/address"
	"github.com/luxfi/anchoring/cmd/decode"
	"github.com/luxfi/anchoring/cmd/fund"
	"github.com/luxfi/anchoring/cmd/generate"
)

func init() {
	cobra.EnablePrefixMatching = true
}

func main() {
	cmd := &cobra.Command{
		Use:   "anchoring",
		Short: "Manages the bitcoin anchoring of a ledger",
	}
	cmd.AddCommand(
		generate.Command(),
		decode.Command(),
		address.Command(),
		fund.Command(),
	)
	ctx := context.Background()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
