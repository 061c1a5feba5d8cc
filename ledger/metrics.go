// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	blocksMinedTotal     prometheus.Counter
	chainLength          prometheus.Gauge
	difficulty           prometheus.Gauge
	miningSeconds        prometheus.Histogram
	persistenceFailures  *prometheus.CounterVec
	rejectedTransactions *prometheus.CounterVec
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.blocksMinedTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "votechain_ledger_blocks_mined_total",
		Help: "total number of blocks mined by this node",
	})
	m.chainLength = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "votechain_ledger_chain_length",
		Help: "current number of blocks in the chain",
	})
	m.difficulty = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "votechain_ledger_difficulty",
		Help: "required leading zero hex characters in block hashes",
	})
	m.miningSeconds = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "votechain_ledger_mining_seconds",
			Help:    "time spent searching for a proof-of-work nonce",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
		},
	)
	m.persistenceFailures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votechain_ledger_persistence_failures_total",
			Help: "gateway failures absorbed by the ledger",
		},
		[]string{"op"},
	)
	m.rejectedTransactions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votechain_ledger_rejected_transactions_total",
			Help: "transactions refused at submission",
		},
		[]string{"reason"},
	)
}
