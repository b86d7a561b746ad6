// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package anchoring

// State is what a validator node is currently doing with the anchoring chain.
type State uint8

const (
	// Unknown is the default / unset state.
	Unknown State = iota

	// Waiting indicates there is nothing to sign: either no lect consensus
	// exists yet or the latest anchoring point is already anchored.
	Waiting

	// Anchoring indicates a periodic anchoring transaction is being signed
	// or broadcast.
	Anchoring

	// Transition indicates funds are moving to a new multisig address, or
	// have moved and anchoring is paused until the new configuration is
	// actual.
	Transition
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Anchoring:
		return "Anchoring"
	case Transition:
		return "Transition"
	default:
		return "Unknown"
	}
}
