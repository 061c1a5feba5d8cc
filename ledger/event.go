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
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/event"
)

const (
	BlockMinedEventType          event.EventType = "ledger.block_mined"
	TransactionRejectedEventType event.EventType = "ledger.tx_rejected"
	LedgerErrorEventType         event.EventType = "ledger.error"
)

// BlockMinedEvent is published after a block is appended to the chain
type BlockMinedEvent struct {
	Block    chain.Block
	Duration time.Duration
}

// TransactionRejectedEvent is published when a submission is refused
type TransactionRejectedEvent struct {
	VoterId string
	Reason  string
	Error   error
}

// LedgerErrorEvent reports a persistence failure absorbed by the ledger
type LedgerErrorEvent struct {
	Error     error
	Operation string
}
