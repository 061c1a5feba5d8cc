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

package chain_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() chain.Block {
	return chain.Block{
		Index:     1,
		Timestamp: 1700000000000,
		Transactions: []chain.Transaction{
			{VoterId: "u1", CandidateId: "c1", Timestamp: 1699999999000},
		},
		PreviousHash: "00001234",
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	b := testBlock()
	assert.Equal(t, b.ComputeHash(), b.ComputeHash())
	assert.Len(t, b.ComputeHash(), chain.HashLength)
	assert.Equal(t, strings.ToLower(b.ComputeHash()), b.ComputeHash())
}

func TestComputeHashCoversEveryField(t *testing.T) {
	base := testBlock()
	baseHash := base.ComputeHash()
	mods := map[string]func(*chain.Block){
		"index":        func(b *chain.Block) { b.Index++ },
		"timestamp":    func(b *chain.Block) { b.Timestamp++ },
		"previousHash": func(b *chain.Block) { b.PreviousHash = "00005678" },
		"nonce":        func(b *chain.Block) { b.Nonce++ },
		"candidate": func(b *chain.Block) {
			b.Transactions = []chain.Transaction{
				{VoterId: "u1", CandidateId: "c2", Timestamp: 1699999999000},
			}
		},
	}
	for name, mod := range mods {
		t.Run(name, func(t *testing.T) {
			b := base.Clone()
			mod(&b)
			assert.NotEqual(t, baseHash, b.ComputeHash())
		})
	}
}

func TestComputeHashSurvivesJSON(t *testing.T) {
	b := testBlock()
	b.Seal(2)
	data, err := json.Marshal(b)
	require.NoError(t, err)
	var decoded chain.Block
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b.Hash, decoded.ComputeHash())
}

func TestNewBlock(t *testing.T) {
	txs := []chain.Transaction{{VoterId: "u1", CandidateId: "c1"}}
	before := time.Now().UnixMilli()
	b := chain.NewBlock(3, "abc", txs)
	assert.Equal(t, uint64(3), b.Index)
	assert.Equal(t, "abc", b.PreviousHash)
	assert.Equal(t, uint64(0), b.Nonce)
	assert.GreaterOrEqual(t, b.Timestamp, before)
	assert.Equal(t, b.ComputeHash(), b.Hash)

	// The block owns its own copy of the batch
	txs[0].CandidateId = "changed"
	assert.Equal(t, "c1", b.Transactions[0].CandidateId)
}

func TestNewGenesisBlock(t *testing.T) {
	b := chain.NewGenesisBlock()
	assert.True(t, b.IsGenesis())
	assert.Equal(t, chain.GenesisPreviousHash, b.PreviousHash)
	require.Len(t, b.Transactions, 1)
	assert.True(t, b.Transactions[0].IsSystem())
	assert.Equal(t, chain.GenesisCandidateId, b.Transactions[0].CandidateId)
}

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		hash       string
		difficulty int
		want       bool
	}{
		{hash: "abcd", difficulty: 0, want: true},
		{hash: "0abc", difficulty: 1, want: true},
		{hash: "0000ab", difficulty: 4, want: true},
		{hash: "000ab0", difficulty: 4, want: false},
		{hash: "00", difficulty: 3, want: false},
		{hash: "", difficulty: 1, want: false},
	}
	for _, tc := range tests {
		assert.Equal(
			t,
			tc.want,
			chain.MeetsDifficulty(tc.hash, tc.difficulty),
			"hash %q difficulty %d",
			tc.hash,
			tc.difficulty,
		)
	}
}

func TestProofOfWork(t *testing.T) {
	b := testBlock()
	nonce, hash := chain.ProofOfWork(b, 3)
	assert.True(t, chain.MeetsDifficulty(hash, 3))

	// The search is pure and returns the first qualifying nonce
	b.Nonce = nonce
	assert.Equal(t, hash, b.ComputeHash())
	nonce2, hash2 := chain.ProofOfWork(testBlock(), 3)
	assert.Equal(t, nonce, nonce2)
	assert.Equal(t, hash, hash2)
	for n := range nonce {
		b.Nonce = n
		assert.False(t, chain.MeetsDifficulty(b.ComputeHash(), 3))
	}
}

func TestProofOfWorkZeroDifficulty(t *testing.T) {
	b := testBlock()
	nonce, hash := chain.ProofOfWork(b, 0)
	assert.Equal(t, uint64(0), nonce)
	assert.Equal(t, b.ComputeHash(), hash)
}

func TestSeal(t *testing.T) {
	b := testBlock()
	b.Seal(2)
	assert.True(t, chain.MeetsDifficulty(b.Hash, 2))
	assert.Equal(t, b.ComputeHash(), b.Hash)
}

func TestProofOfWorkContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Impossible target, so only cancellation can end the search
	_, _, err := chain.ProofOfWorkContext(ctx, testBlock(), chain.HashLength+1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProofOfWorkContext(t *testing.T) {
	nonce, hash, err := chain.ProofOfWorkContext(
		context.Background(),
		testBlock(),
		2,
	)
	require.NoError(t, err)
	wantNonce, wantHash := chain.ProofOfWork(testBlock(), 2)
	assert.Equal(t, wantNonce, nonce)
	assert.Equal(t, wantHash, hash)
}
