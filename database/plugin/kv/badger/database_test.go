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

package badger_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/blinklabs-io/votechain/database/plugin/kv/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minedChain(t *testing.T, length int) []chain.Block {
	t.Helper()
	blocks := make([]chain.Block, 0, length)
	genesis := chain.NewGenesisBlock()
	genesis.Seal(1)
	blocks = append(blocks, genesis)
	for i := 1; i < length; i++ {
		b := chain.NewBlock(
			uint64(i),
			blocks[i-1].Hash,
			[]chain.Transaction{chain.NewTransaction("u1", "c1", "key", "sig")},
		)
		b.Seal(1)
		blocks = append(blocks, b)
	}
	return blocks
}

func TestBlocksRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := badger.New("", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	// 300 crosses the single byte boundary in the key encoding
	blocks := minedChain(t, 300)
	for i := len(blocks) - 1; i >= 0; i-- {
		require.NoError(t, s.SaveBlock(ctx, blocks[i]))
	}
	loaded, err := s.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, len(blocks))
	for i := range blocks {
		assert.Equal(t, blocks[i].Hash, loaded[i].Hash)
		assert.Equal(t, blocks[i].ComputeHash(), loaded[i].ComputeHash())
	}
}

func TestSaveBlockReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := badger.New("", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	b := chain.NewGenesisBlock()
	require.NoError(t, s.SaveBlock(ctx, b))
	b.Seal(2)
	require.NoError(t, s.SaveBlock(ctx, b))
	loaded, err := s.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, b.Hash, loaded[0].Hash)
}

func TestTruncateBlocks(t *testing.T) {
	ctx := context.Background()
	s, err := badger.New("", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	blocks := minedChain(t, 300)
	for _, b := range blocks {
		require.NoError(t, s.SaveBlock(ctx, b))
	}
	require.NoError(t, s.TruncateBlocks(ctx, 2))
	loaded, err := s.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, blocks[1].Hash, loaded[1].Hash)

	// Nothing at or past the cut point is a no-op
	require.NoError(t, s.TruncateBlocks(ctx, 10))
	loaded, err = s.LoadBlocks(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestPendingPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := badger.New(dir, nil, nil)
	require.NoError(t, err)
	first := chain.NewTransaction("u1", "c1", "key", "sig")
	require.NoError(t, s.SavePending(ctx, first))
	require.NoError(t, s.Close())

	s, err = badger.New(dir, nil, nil)
	require.NoError(t, err)
	defer s.Close()
	second := chain.NewTransaction("u2", "c2", "key", "sig")
	require.NoError(t, s.SavePending(ctx, second))
	loaded, err := s.LoadPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chain.Transaction{first, second}, loaded)

	require.NoError(t, s.ClearPending(ctx))
	loaded, err = s.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestNotStarted(t *testing.T) {
	s := badger.NewWithOptions()
	_, err := s.LoadBlocks(context.Background())
	assert.ErrorIs(t, err, badger.ErrNotStarted)
}

func TestCanceledContext(t *testing.T) {
	s, err := badger.New("", nil, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SaveBlock(ctx, chain.NewGenesisBlock()), context.Canceled)
}

func TestSizeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := badger.New("", nil, reg)
	require.NoError(t, err)
	defer s.Close()
	count, err := testutil.GatherAndCount(
		reg,
		"votechain_database_badger_lsm_size_bytes",
		"votechain_database_badger_vlog_size_bytes",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPluginRegistered(t *testing.T) {
	p := plugin.GetPlugin(plugin.PluginTypeKv, "badger")
	require.NotNil(t, p)
	_, ok := p.(*badger.StoreBadger)
	assert.True(t, ok)
}
