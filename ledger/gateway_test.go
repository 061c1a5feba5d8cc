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

package ledger_test

import (
	"context"
	"slices"
	"sync"

	"github.com/blinklabs-io/votechain/chain"
)

// memGateway is an in-memory gateway with per-operation failure injection.
// Like the real stores, it refuses work on a done context.
type memGateway struct {
	mu      sync.Mutex
	blocks  map[uint64]chain.Block
	pending []chain.Transaction
	fail    map[string]error
	calls   map[string]int
}

func newMemGateway() *memGateway {
	return &memGateway{
		blocks: make(map[uint64]chain.Block),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (g *memGateway) failOp(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *memGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *memGateway) enter(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.fail[op]
}

func (g *memGateway) LoadBlocks(ctx context.Context) ([]chain.Block, error) {
	err := g.enter(ctx, "load_blocks")
	defer g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ret := make([]chain.Block, 0, len(g.blocks))
	for _, b := range g.blocks {
		ret = append(ret, b.Clone())
	}
	slices.SortFunc(ret, func(a, b chain.Block) int {
		return int(a.Index) - int(b.Index) //nolint:gosec // test chains are short
	})
	return ret, nil
}

func (g *memGateway) LoadPending(ctx context.Context) ([]chain.Transaction, error) {
	err := g.enter(ctx, "load_pending")
	defer g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.pending), nil
}

func (g *memGateway) SaveBlock(ctx context.Context, b chain.Block) error {
	err := g.enter(ctx, "save_block")
	defer g.mu.Unlock()
	if err != nil {
		return err
	}
	g.blocks[b.Index] = b.Clone()
	return nil
}

func (g *memGateway) SavePending(ctx context.Context, tx chain.Transaction) error {
	err := g.enter(ctx, "save_pending")
	defer g.mu.Unlock()
	if err != nil {
		return err
	}
	g.pending = append(g.pending, tx)
	return nil
}

func (g *memGateway) ClearPending(ctx context.Context) error {
	err := g.enter(ctx, "clear_pending")
	defer g.mu.Unlock()
	if err != nil {
		return err
	}
	g.pending = nil
	return nil
}

func (g *memGateway) TruncateBlocks(ctx context.Context, from uint64) error {
	err := g.enter(ctx, "truncate_blocks")
	defer g.mu.Unlock()
	if err != nil {
		return err
	}
	for index := range g.blocks {
		if index >= from {
			delete(g.blocks, index)
		}
	}
	return nil
}

func (g *memGateway) Close() error {
	return nil
}
