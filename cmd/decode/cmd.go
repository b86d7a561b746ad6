// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/anchoring/btc"
)

type Output struct {
	Value    int64  `json:"value"`
	PkScript string `json:"pkScript"`
}

type Payload struct {
	Kind        string `json:"kind"`
	Height      uint64 `json:"height"`
	BlockHash   string `json:"blockHash"`
	PrevTxChain string `json:"prevTxChain,omitempty"`
}

type Decoded struct {
	TxID    string   `json:"txID"`
	Inputs  []string `json:"inputs"`
	Outputs []Output `json:"outputs"`
	Payload *Payload `json:"payload,omitempty"`
}

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-tx <hex>",
		Short: "Decodes an anchoring transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  decodeFunc,
	}
}

func decodeFunc(c *cobra.Command, args []string) error {
	tx, err := btc.ParseTxHex(args[0])
	if err != nil {
		return err
	}
	decoded, err := Decode(tx)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), string(b))
	return err
}

func Decode(tx *btc.Tx) (*Decoded, error) {
	d := &Decoded{
		TxID: tx.ID().String(),
	}
	for _, outpoint := range tx.Inputs() {
		d.Inputs = append(d.Inputs, outpoint.String())
	}
	for _, out := range tx.Outputs() {
		d.Outputs = append(d.Outputs, Output{
			Value:    out.Value,
			PkScript: fmt.Sprintf("%x", out.PkScript),
		})
	}
	if payload, ok := tx.Payload(); ok {
		d.Payload = &Payload{
			Kind:      payload.Kind().String(),
			Height:    payload.Height,
			BlockHash: payload.BlockHash.String(),
		}
		if payload.PrevTxChain != nil {
			d.Payload.PrevTxChain = payload.PrevTxChain.String()
		}
	}
	return d, nil
}
