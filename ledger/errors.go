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
	"errors"
	"fmt"
)

var (
	ErrEmptyLedger   = errors.New("ledger is empty")
	ErrNothingToMine = errors.New("no pending transactions to mine")
	ErrDuplicateVote = errors.New("voter has already voted")
	ErrBlockNotFound = errors.New("block not found")
	ErrChainInvalid  = errors.New("chain is invalid")
	ErrNotStarted    = errors.New("ledger not started")
)

type ValidationReason string

const (
	ReasonHashMismatch         ValidationReason = "stored hash does not match block contents"
	ReasonPreviousHashMismatch ValidationReason = "previous hash does not match prior block"
	ReasonDifficulty           ValidationReason = "hash does not meet difficulty"
)

// ChainValidationError identifies the first block that failed validation
type ChainValidationError struct {
	Index  uint64
	Reason ValidationReason
}

func (e *ChainValidationError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

func (e *ChainValidationError) Is(target error) bool {
	return target == ErrChainInvalid
}
