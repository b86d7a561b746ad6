// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/anchoring/txs"
)

const (
	kindLabel   = "kind"
	resultLabel = "result"
)

var (
	_ txs.Visitor = (*messageMetrics)(nil)

	messageLabels = []string{kindLabel, resultLabel}
)

type messageMetrics struct {
	numMessages *prometheus.CounterVec
	result      string
}

func newMessageMetrics(numMessages *prometheus.CounterVec, result string) *messageMetrics {
	return &messageMetrics{
		numMessages: numMessages,
		result:      result,
	}
}

func (m *messageMetrics) Signature(*txs.Signature) error {
	m.numMessages.With(prometheus.Labels{
		kindLabel:   "signature",
		resultLabel: m.result,
	}).Inc()
	return nil
}

func (m *messageMetrics) Lect(*txs.Lect) error {
	m.numMessages.With(prometheus.Labels{
		kindLabel:   "lect",
		resultLabel: m.result,
	}).Inc()
	return nil
}
