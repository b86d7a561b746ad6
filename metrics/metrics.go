// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/anchoring/txs"
	"github.com/luxfi/anchoring/utils/wrappers"
)

var _ Metrics = (*metrics)(nil)

type Metrics interface {
	// MarkAccepted counts a message applied to the ledger.
	MarkAccepted(msg txs.Message) error
	// MarkRejected counts a message that failed validation.
	MarkRejected(msg txs.Message) error
	// MarkDuplicate counts a message that was already known.
	MarkDuplicate(msg txs.Message) error

	IncProposals()
	IncBroadcasts()
	IncRelayErrors()

	// SetAnchoredHeight records the height of the latest agreed anchor.
	SetAnchoredHeight(height uint64)
}

type metrics struct {
	accepted  *messageMetrics
	rejected  *messageMetrics
	duplicate *messageMetrics

	numProposals   prometheus.Counter
	numBroadcasts  prometheus.Counter
	numRelayErrors prometheus.Counter
	anchoredHeight prometheus.Gauge
}

func New(namespace string, registerer prometheus.Registerer) (Metrics, error) {
	messages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages",
			Help:      "number of anchoring messages processed",
		},
		messageLabels,
	)
	m := &metrics{
		accepted:  newMessageMetrics(messages, "accepted"),
		rejected:  newMessageMetrics(messages, "rejected"),
		duplicate: newMessageMetrics(messages, "duplicate"),
		numProposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals",
			Help:      "number of anchoring transactions proposed",
		}),
		numBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts",
			Help:      "number of fully signed anchoring transactions sent to bitcoin",
		}),
		numRelayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors",
			Help:      "number of failed bitcoin relay calls",
		}),
		anchoredHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anchored_height",
			Help:      "ledger height of the latest agreed anchor",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(messages),
		registerer.Register(m.numProposals),
		registerer.Register(m.numBroadcasts),
		registerer.Register(m.numRelayErrors),
		registerer.Register(m.anchoredHeight),
	)
	return m, errs.Err
}

func (m *metrics) MarkAccepted(msg txs.Message) error {
	return msg.Visit(m.accepted)
}

func (m *metrics) MarkRejected(msg txs.Message) error {
	return msg.Visit(m.rejected)
}

func (m *metrics) MarkDuplicate(msg txs.Message) error {
	return msg.Visit(m.duplicate)
}

func (m *metrics) IncProposals() {
	m.numProposals.Inc()
}

func (m *metrics) IncBroadcasts() {
	m.numBroadcasts.Inc()
}

func (m *metrics) IncRelayErrors() {
	m.numRelayErrors.Inc()
}

func (m *metrics) SetAnchoredHeight(height uint64) {
	m.anchoredHeight.Set(float64(height))
}
