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

// Package mempool holds vote transactions accepted by the ledger that are
// waiting to be mined into a block
package mempool

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	AddTransactionEventType event.EventType = "mempool.add_tx"
	ClearEventType          event.EventType = "mempool.clear"
)

type AddTransactionEvent struct {
	Hash        string
	VoterId     string
	CandidateId string
}

type ClearEvent struct {
	Count int
}

type MempoolTransaction struct {
	Added time.Time
	Hash  string
	Tx    chain.Transaction
}

type MempoolConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	// Maximum number of pending transactions, 0 for no limit
	MempoolCapacity int
}

// Mempool is an order-preserving pool of pending transactions. It performs
// no validation of its own.
type Mempool struct {
	config  MempoolConfig
	metrics struct {
		txsProcessedNum prometheus.Counter
		txsInMempool    prometheus.Gauge
	}
	logger       *slog.Logger
	eventBus     *event.EventBus
	transactions []*MempoolTransaction
	sync.RWMutex
}

type MempoolFullError struct {
	CurrentCount int
	Capacity     int
}

func (e *MempoolFullError) Error() string {
	return fmt.Sprintf(
		"mempool full: current count=%d, capacity=%d",
		e.CurrentCount,
		e.Capacity,
	)
}

func NewMempool(config MempoolConfig) *Mempool {
	m := &Mempool{
		eventBus: config.EventBus,
		config:   config,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = config.Logger
	}
	m.logger = m.logger.With("component", "mempool")
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	m.metrics.txsProcessedNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "votechain_mempool_txs_processed_total",
			Help: "total transactions added to the mempool",
		},
	)
	m.metrics.txsInMempool = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "votechain_mempool_txs",
		Help: "current count of mempool transactions",
	})
	return m
}

// AddTransaction appends a transaction to the end of the pool
func (m *Mempool) AddTransaction(tx chain.Transaction) error {
	m.Lock()
	defer m.Unlock()
	if m.config.MempoolCapacity > 0 &&
		len(m.transactions) >= m.config.MempoolCapacity {
		return &MempoolFullError{
			CurrentCount: len(m.transactions),
			Capacity:     m.config.MempoolCapacity,
		}
	}
	entry := &MempoolTransaction{
		Added: time.Now(),
		Hash:  tx.Hash(),
		Tx:    tx,
	}
	m.transactions = append(m.transactions, entry)
	m.logger.Debug(
		"added transaction",
		"tx_hash", entry.Hash,
		"voter_id", tx.VoterId,
	)
	m.metrics.txsProcessedNum.Inc()
	m.metrics.txsInMempool.Set(float64(len(m.transactions)))
	if m.eventBus != nil {
		m.eventBus.Publish(
			AddTransactionEventType,
			event.NewEvent(
				AddTransactionEventType,
				AddTransactionEvent{
					Hash:        entry.Hash,
					VoterId:     tx.VoterId,
					CandidateId: tx.CandidateId,
				},
			),
		)
	}
	return nil
}

// Load replaces the pool contents, used when restoring persisted state.
// Capacity is not enforced and no events are generated.
func (m *Mempool) Load(txs []chain.Transaction) {
	m.Lock()
	defer m.Unlock()
	now := time.Now()
	m.transactions = make([]*MempoolTransaction, 0, len(txs))
	for _, tx := range txs {
		m.transactions = append(
			m.transactions,
			&MempoolTransaction{Added: now, Hash: tx.Hash(), Tx: tx},
		)
	}
	m.metrics.txsInMempool.Set(float64(len(m.transactions)))
}

// Transactions returns the pending transactions in submission order
func (m *Mempool) Transactions() []chain.Transaction {
	m.RLock()
	defer m.RUnlock()
	ret := make([]chain.Transaction, len(m.transactions))
	for i, entry := range m.transactions {
		ret[i] = entry.Tx
	}
	return ret
}

// Snapshot returns a copy of the pending transactions that shares no
// memory with the pool
func (m *Mempool) Snapshot() []chain.Transaction {
	return m.Transactions()
}

// Len returns the number of pending transactions
func (m *Mempool) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.transactions)
}

// Clear removes all pending transactions and returns how many there were
func (m *Mempool) Clear() int {
	m.Lock()
	defer m.Unlock()
	count := len(m.transactions)
	m.transactions = nil
	m.metrics.txsInMempool.Set(0)
	m.logger.Debug("cleared mempool", "count", count)
	if m.eventBus != nil {
		m.eventBus.Publish(
			ClearEventType,
			event.NewEvent(ClearEventType, ClearEvent{Count: count}),
		)
	}
	return count
}
