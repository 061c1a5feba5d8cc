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

// IsChainValid reports whether every block after genesis is intact, linked
// to its predecessor and sealed at the current difficulty
func (l *Ledger) IsChainValid() bool {
	return l.ValidateChain() == nil
}

// ValidateChain returns a *ChainValidationError for the first block that
// fails validation
func (l *Ledger) ValidateChain() error {
	l.RLock()
	defer l.RUnlock()
	return l.validateChainLocked()
}

func (l *Ledger) validateChainLocked() error {
	return ValidateBlocks(l.chain, l.config.Difficulty)
}

// ValidateBlocks checks a chain against a difficulty. Chains of zero or one
// block are valid.
func ValidateBlocks(blocks []chain.Block, difficulty int) error {
	for i := 1; i < len(blocks); i++ {
		cur := blocks[i]
		prev := blocks[i-1]
		if cur.Hash != cur.ComputeHash() {
			return &ChainValidationError{
				Index:  cur.Index,
				Reason: ReasonHashMismatch,
			}
		}
		if cur.PreviousHash != prev.Hash {
			return &ChainValidationError{
				Index:  cur.Index,
				Reason: ReasonPreviousHashMismatch,
			}
		}
		if !chain.MeetsDifficulty(cur.Hash, difficulty) {
			return &ChainValidationError{
				Index:  cur.Index,
				Reason: ReasonDifficulty,
			}
		}
	}
	return nil
}
