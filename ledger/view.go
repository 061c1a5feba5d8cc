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
	"github.com/blinklabs-io/votechain/chain"
)

// Chain returns a copy of every block
func (l *Ledger) Chain() []chain.Block {
	l.RLock()
	defer l.RUnlock()
	ret := make([]chain.Block, len(l.chain))
	for i, b := range l.chain {
		ret[i] = b.Clone()
	}
	return ret
}

// Len returns the number of blocks in the chain. It does not take the lock
// and so answers while a block is being mined.
func (l *Ledger) Len() int {
	return int(l.length.Load())
}

func (l *Ledger) LatestBlock() (chain.Block, error) {
	l.RLock()
	defer l.RUnlock()
	if len(l.chain) == 0 {
		return chain.Block{}, ErrEmptyLedger
	}
	return l.chain[len(l.chain)-1].Clone(), nil
}

func (l *Ledger) BlockByIndex(index uint64) (chain.Block, error) {
	l.RLock()
	defer l.RUnlock()
	if index >= uint64(len(l.chain)) {
		return chain.Block{}, ErrBlockNotFound
	}
	return l.chain[index].Clone(), nil
}

// PendingTransactions returns a copy of the pool in submission order
func (l *Ledger) PendingTransactions() []chain.Transaction {
	return l.mempool.Transactions()
}

func (l *Ledger) Difficulty() int {
	return l.config.Difficulty
}

// HasVoted reports whether a voter id appears in the chain or the pool
func (l *Ledger) HasVoted(voterId string) bool {
	l.RLock()
	defer l.RUnlock()
	_, ok := l.voters[voterId]
	return ok
}
