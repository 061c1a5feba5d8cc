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

package models_test

import (
	"testing"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database/models"
	"github.com/stretchr/testify/assert"
)

func TestBlockConversionKeepsOrderAndHash(t *testing.T) {
	b := chain.NewBlock(
		5,
		"prev",
		[]chain.Transaction{
			chain.NewTransaction("u1", "c1", "k1", "s1"),
			chain.NewTransaction("u2", "c2", "k2", "s2"),
		},
	)
	b.Seal(1)
	model := models.BlockFromChain(b)
	assert.Equal(t, uint64(5), model.Transactions[1].BlockIndex)
	assert.Equal(t, 1, model.Transactions[1].Position)

	back := model.ToChain()
	assert.Equal(t, b, back)
	assert.Equal(t, back.Hash, back.ComputeHash())
}

func TestPendingConversion(t *testing.T) {
	tx := chain.NewTransaction("u1", "c1", "k1", "s1")
	assert.Equal(t, tx, models.PendingFromChain(tx).ToChain())
}
