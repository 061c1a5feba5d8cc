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

package mempool

import (
	"testing"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMempool(t *testing.T, capacity int) (*Mempool, *event.EventBus) {
	t.Helper()
	eb := event.NewEventBus(nil, nil)
	t.Cleanup(eb.Stop)
	return NewMempool(MempoolConfig{
		PromRegistry:    prometheus.NewRegistry(),
		EventBus:        eb,
		MempoolCapacity: capacity,
	}), eb
}

func testTx(voter string, candidate string) chain.Transaction {
	return chain.NewTransaction(voter, candidate, "KEY", "SIG")
}

func TestAddTransactionPreservesOrder(t *testing.T) {
	m, _ := newTestMempool(t, 0)
	for _, voter := range []string{"u1", "u2", "u3"} {
		require.NoError(t, m.AddTransaction(testTx(voter, "c1")))
	}
	txs := m.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, "u1", txs[0].VoterId)
	assert.Equal(t, "u2", txs[1].VoterId)
	assert.Equal(t, "u3", txs[2].VoterId)
	assert.Equal(t, 3, m.Len())
}

func TestAddTransactionNoDedup(t *testing.T) {
	m, _ := newTestMempool(t, 0)
	tx := testTx("u1", "c1")
	require.NoError(t, m.AddTransaction(tx))
	require.NoError(t, m.AddTransaction(tx))
	assert.Equal(t, 2, m.Len())
}

func TestSnapshotIsIndependent(t *testing.T) {
	m, _ := newTestMempool(t, 0)
	require.NoError(t, m.AddTransaction(testTx("u1", "c1")))
	snap := m.Snapshot()
	snap[0].CandidateId = "changed"
	require.NoError(t, m.AddTransaction(testTx("u2", "c2")))
	assert.Len(t, snap, 1)
	assert.Equal(t, "c1", m.Transactions()[0].CandidateId)
}

func TestMempoolCapacity(t *testing.T) {
	m, _ := newTestMempool(t, 2)
	require.NoError(t, m.AddTransaction(testTx("u1", "c1")))
	require.NoError(t, m.AddTransaction(testTx("u2", "c1")))
	err := m.AddTransaction(testTx("u3", "c1"))
	var fullErr *MempoolFullError
	require.ErrorAs(t, err, &fullErr)
	assert.Equal(t, 2, fullErr.CurrentCount)
	assert.Equal(t, 2, fullErr.Capacity)
	assert.Equal(t, 2, m.Len())
}

func TestClear(t *testing.T) {
	m, _ := newTestMempool(t, 0)
	require.NoError(t, m.AddTransaction(testTx("u1", "c1")))
	require.NoError(t, m.AddTransaction(testTx("u2", "c1")))
	assert.Equal(t, 2, m.Clear())
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Transactions())
	assert.Equal(t, 0, m.Clear())
}

func TestLoad(t *testing.T) {
	m, _ := newTestMempool(t, 1)
	// Restored state may exceed the configured capacity
	m.Load([]chain.Transaction{testTx("u1", "c1"), testTx("u2", "c2")})
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "u2", m.Transactions()[1].VoterId)
}

func TestMempoolMetrics(t *testing.T) {
	m, _ := newTestMempool(t, 0)
	require.NoError(t, m.AddTransaction(testTx("u1", "c1")))
	require.NoError(t, m.AddTransaction(testTx("u2", "c1")))
	assert.InDelta(t, 2, testutil.ToFloat64(m.metrics.txsProcessedNum), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.metrics.txsInMempool), 0)
	m.Clear()
	assert.InDelta(t, 0, testutil.ToFloat64(m.metrics.txsInMempool), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.metrics.txsProcessedNum), 0)
}

func TestMempoolEvents(t *testing.T) {
	m, eb := newTestMempool(t, 0)
	_, addCh := eb.Subscribe(AddTransactionEventType)
	_, clearCh := eb.Subscribe(ClearEventType)

	tx := testTx("u1", "c1")
	require.NoError(t, m.AddTransaction(tx))
	select {
	case evt := <-addCh:
		data, ok := evt.Data.(AddTransactionEvent)
		require.True(t, ok)
		assert.Equal(t, tx.Hash(), data.Hash)
		assert.Equal(t, "u1", data.VoterId)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for add event")
	}

	m.Clear()
	select {
	case evt := <-clearCh:
		data, ok := evt.Data.(ClearEvent)
		require.True(t, ok)
		assert.Equal(t, 1, data.Count)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for clear event")
	}
}

func TestMempoolNilEventBus(t *testing.T) {
	m := NewMempool(MempoolConfig{})
	require.NoError(t, m.AddTransaction(testTx("u1", "c1")))
	assert.Equal(t, 1, m.Clear())
}
