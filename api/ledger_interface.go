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

package api

import (
	"context"

	"github.com/blinklabs-io/votechain/chain"
)

// LedgerService is the subset of the ledger the API serves. It decouples
// the HTTP server from the concrete ledger and enables testing with mock
// implementations.
type LedgerService interface {
	Chain() []chain.Block
	Len() int
	ValidateChain() error
	PendingTransactions() []chain.Transaction
	SubmitTransaction(ctx context.Context, tx chain.Transaction) error
	MinePending(ctx context.Context) (*chain.Block, error)
}
