// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package anchoring commits checkpoints of a replicated ledger into the
// Bitcoin blockchain through a chain of multisignature transactions that are
// co-signed by the ledger's validators.
package anchoring

const (
	// ServiceID namespaces every table owned by the anchoring service.
	ServiceID uint8 = 3

	// ServiceName is the key of the anchoring payload inside the host
	// ledger's configuration document.
	ServiceName = "btc_anchoring"
)

// MajorityCount returns the number of validators out of n that must agree
// for a decision to be final. The result is always strictly greater than
// 2n/3, so up to (n-1)/3 faulty validators are tolerated.
func MajorityCount(n int) int {
	return n*2/3 + 1
}
