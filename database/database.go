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

package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultPlugin = "badger"

// Gateway is the durable store behind the ledger. Blocks are keyed by index
// and an existing block at the same index is overwritten. Pending
// transactions are appended and cleared as a whole. TruncateBlocks drops
// the tail of the chain from the given index on.
type Gateway interface {
	LoadBlocks(ctx context.Context) ([]chain.Block, error)
	LoadPending(ctx context.Context) ([]chain.Transaction, error)
	SaveBlock(ctx context.Context, block chain.Block) error
	SavePending(ctx context.Context, tx chain.Transaction) error
	ClearPending(ctx context.Context) error
	TruncateBlocks(ctx context.Context, from uint64) error
	Close() error
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Plugin is the name of a registered kv or sql storage plugin
	Plugin string
}

// Database wraps a storage plugin, tagging its errors with the failed
// operation and recording per-operation metrics
type Database struct {
	logger  *slog.Logger
	store   plugin.Store
	plugin  string
	metrics *databaseMetrics
}

// New starts the configured storage plugin. Plugin options must already be
// applied through the plugin registry.
func New(cfg Config) (*Database, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Plugin == "" {
		cfg.Plugin = DefaultPlugin
	}
	pluginType, ok := plugin.LookupType(cfg.Plugin)
	if !ok {
		return nil, fmt.Errorf("unknown storage plugin: %s", cfg.Plugin)
	}
	p, err := plugin.StartPlugin(
		pluginType,
		cfg.Plugin,
		cfg.Logger,
		cfg.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	store, ok := p.(plugin.Store)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin %s does not implement chain storage",
			cfg.Plugin,
		)
	}
	return NewFromStore(cfg.Plugin, store, cfg.Logger, cfg.PromRegistry), nil
}

// NewFromStore wraps an already started store
func NewFromStore(
	name string,
	store plugin.Store,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) *Database {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d := &Database{
		logger: logger,
		store:  store,
		plugin: name,
	}
	if promRegistry != nil {
		d.metrics = newDatabaseMetrics(promRegistry, name)
	}
	d.logger.Info(
		"storage plugin started",
		"component", "database",
		"plugin", name,
	)
	return d
}

// Plugin returns the name of the underlying storage plugin
func (d *Database) Plugin() string {
	return d.plugin
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

func (d *Database) observe(op string, start time.Time, err error) error {
	d.metrics.observe(op, time.Since(start), err)
	if err == nil {
		return nil
	}
	d.logger.Debug(
		fmt.Sprintf("storage operation %s failed: %s", op, err),
		"component", "database",
		"plugin", d.plugin,
	)
	return &PersistenceError{Op: op, Err: err}
}

func (d *Database) LoadBlocks(ctx context.Context) ([]chain.Block, error) {
	start := time.Now()
	blocks, err := d.store.LoadBlocks(ctx)
	if err := d.observe("load_blocks", start, err); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (d *Database) LoadPending(ctx context.Context) ([]chain.Transaction, error) {
	start := time.Now()
	txs, err := d.store.LoadPending(ctx)
	if err := d.observe("load_pending", start, err); err != nil {
		return nil, err
	}
	return txs, nil
}

func (d *Database) SaveBlock(ctx context.Context, block chain.Block) error {
	start := time.Now()
	return d.observe("save_block", start, d.store.SaveBlock(ctx, block))
}

func (d *Database) SavePending(ctx context.Context, tx chain.Transaction) error {
	start := time.Now()
	return d.observe("save_pending", start, d.store.SavePending(ctx, tx))
}

func (d *Database) ClearPending(ctx context.Context) error {
	start := time.Now()
	return d.observe("clear_pending", start, d.store.ClearPending(ctx))
}

func (d *Database) TruncateBlocks(ctx context.Context, from uint64) error {
	start := time.Now()
	return d.observe("truncate_blocks", start, d.store.TruncateBlocks(ctx, from))
}

// Close stops the storage plugin
func (d *Database) Close() error {
	return d.store.Stop()
}
