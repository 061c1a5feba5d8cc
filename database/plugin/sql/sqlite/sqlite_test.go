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

package sqlite_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/blinklabs-io/votechain/database/plugin/sql/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ plugin.Store = (*sqlite.StoreSqlite)(nil)

func sealedBlock(index uint64, prev string, voters ...string) chain.Block {
	txs := make([]chain.Transaction, 0, len(voters))
	for _, v := range voters {
		txs = append(txs, chain.NewTransaction(v, "c-"+v, "key-"+v, "sig-"+v))
	}
	b := chain.NewBlock(index, prev, txs)
	b.Seal(1)
	return b
}

func TestSqliteBlocksRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()

	genesis := sealedBlock(0, chain.GenesisPreviousHash, "system")
	b1 := sealedBlock(1, genesis.Hash, "u1", "u2", "u3")
	// Save out of order to check ordering on load
	require.NoError(t, store.SaveBlock(ctx, b1))
	require.NoError(t, store.SaveBlock(ctx, genesis))

	blocks, err := store.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, genesis, blocks[0])
	assert.Equal(t, b1, blocks[1])
	assert.Equal(t, b1.Hash, blocks[1].ComputeHash())
}

func TestSqliteGenesisKeepsTransactions(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()

	genesis := chain.NewGenesisBlock()
	genesis.Seal(1)
	require.NoError(t, store.SaveBlock(ctx, genesis))
	// Saving again replaces rather than duplicates the children
	require.NoError(t, store.SaveBlock(ctx, genesis))

	blocks, err := store.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Transactions, 1)
	assert.True(t, blocks[0].Transactions[0].IsSystem())
	assert.Equal(t, genesis.Hash, blocks[0].ComputeHash())
}

func TestSqliteTruncateBlocks(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()

	genesis := sealedBlock(0, chain.GenesisPreviousHash, "system")
	b1 := sealedBlock(1, genesis.Hash, "u1")
	b2 := sealedBlock(2, b1.Hash, "u2", "u3")
	for _, b := range []chain.Block{genesis, b1, b2} {
		require.NoError(t, store.SaveBlock(ctx, b))
	}
	require.NoError(t, store.TruncateBlocks(ctx, 1))
	blocks, err := store.LoadBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chain.Block{genesis}, blocks)

	// Orphaned transaction rows must not resurface under a new block 2
	replacement := sealedBlock(2, genesis.Hash, "u9")
	require.NoError(t, store.SaveBlock(ctx, replacement))
	blocks, err = store.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, replacement, blocks[1])
}

func TestSqliteSaveBlockOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveBlock(ctx, sealedBlock(1, "a", "u1", "u2")))
	replacement := sealedBlock(1, "b", "u9")
	require.NoError(t, store.SaveBlock(ctx, replacement))

	blocks, err := store.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, replacement, blocks[0])
}

func TestSqlitePending(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	tx1 := chain.NewTransaction("u1", "c1", "k1", "s1")
	tx2 := chain.NewTransaction("u2", "c2", "k2", "s2")
	require.NoError(t, store.SavePending(ctx, tx1))
	require.NoError(t, store.SavePending(ctx, tx2))
	pending, err = store.LoadPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chain.Transaction{tx1, tx2}, pending)

	require.NoError(t, store.ClearPending(ctx))
	pending, err = store.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSqlitePersistsToDisk(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	store, err := sqlite.New(dataDir, nil, nil)
	require.NoError(t, err)
	b := sealedBlock(0, chain.GenesisPreviousHash, "system")
	require.NoError(t, store.SaveBlock(ctx, b))
	require.NoError(t, store.SavePending(ctx, chain.NewTransaction("u1", "c1", "", "")))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(dataDir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()
	blocks, err := reopened.LoadBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chain.Block{b}, blocks)
	pending, err := reopened.LoadPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSqliteSeparateMemoryDatabases(t *testing.T) {
	ctx := context.Background()
	s1, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s1.SavePending(ctx, chain.NewTransaction("u1", "c1", "", "")))
	pending, err := s2.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSqliteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, err := sqlite.New("", nil, reg)
	require.NoError(t, err)
	defer store.Close()
	count, err := testutil.GatherAndCount(reg, "go_sql_max_open_connections")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSqlitePluginRegistered(t *testing.T) {
	pluginType, ok := plugin.LookupType("sqlite")
	require.True(t, ok)
	assert.Equal(t, plugin.PluginTypeSql, pluginType)
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeSql, "sqlite", "data-dir", ""))
	p, err := plugin.StartPlugin(plugin.PluginTypeSql, "sqlite", nil, nil)
	require.NoError(t, err)
	defer p.Stop()
	_, ok = p.(plugin.Store)
	assert.True(t, ok)
}
