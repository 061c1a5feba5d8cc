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

package chain

import (
	"context"
)

// Attempts between context checks in ProofOfWorkContext
const powCheckInterval = 4096

// MeetsDifficulty reports whether the first difficulty characters of hash
// are all '0'
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	for i := range difficulty {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// ProofOfWork searches upward from the block's current nonce for the first
// nonce whose hash meets the difficulty. The search is unbounded and the
// block is not modified.
func ProofOfWork(block Block, difficulty int) (uint64, string) {
	prefix := block.hashPrefix()
	nonce := block.Nonce
	hash := hashWithNonce(prefix, nonce)
	for !MeetsDifficulty(hash, difficulty) {
		nonce++
		hash = hashWithNonce(prefix, nonce)
	}
	return nonce, hash
}

// ProofOfWorkContext is ProofOfWork with cancellation. It returns the
// context error if the context ends before a nonce is found.
func ProofOfWorkContext(
	ctx context.Context,
	block Block,
	difficulty int,
) (uint64, string, error) {
	prefix := block.hashPrefix()
	nonce := block.Nonce
	hash := hashWithNonce(prefix, nonce)
	for attempts := 1; !MeetsDifficulty(hash, difficulty); attempts++ {
		if attempts%powCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", err
			}
		}
		nonce++
		hash = hashWithNonce(prefix, nonce)
	}
	return nonce, hash, nil
}

// Seal runs proof-of-work on the block in place
func (b *Block) Seal(difficulty int) {
	b.Nonce, b.Hash = ProofOfWork(*b, difficulty)
}
