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

// Package sqlstore implements the block and pending transaction storage
// shared by the gorm-backed plugins
package sqlstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store persists chain data through gorm
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New wraps an open gorm handle, installs tracing and migrates the schema.
// The registry may be nil.
func New(
	db *gorm.DB,
	dbName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if promRegistry != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := promRegistry.Register(
			collectors.NewDBStatsCollector(sqlDB, dbName),
		); err != nil {
			return nil, fmt.Errorf("failed to register db stats: %w", err)
		}
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		s.logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) LoadBlocks(ctx context.Context) ([]chain.Block, error) {
	var blocks []models.Block
	result := s.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		Order("block_index").
		Find(&blocks)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make([]chain.Block, len(blocks))
	for i, b := range blocks {
		ret[i] = b.ToChain()
	}
	return ret, nil
}

func (s *Store) LoadPending(ctx context.Context) ([]chain.Transaction, error) {
	var pending []models.PendingTransaction
	if result := s.db.WithContext(ctx).Order("id").Find(&pending); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]chain.Transaction, len(pending))
	for i, p := range pending {
		ret[i] = p.ToChain()
	}
	return ret, nil
}

// SaveBlock stores a block, replacing any block already stored at its index
func (s *Store) SaveBlock(ctx context.Context, block chain.Block) error {
	model := models.BlockFromChain(block)
	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if result := txn.Where("block_index = ?", block.Index).
			Delete(&models.BlockTransaction{}); result.Error != nil {
			return result.Error
		}
		if result := txn.Where("block_index = ?", block.Index).
			Delete(&models.Block{}); result.Error != nil {
			return result.Error
		}
		// Children are written explicitly since gorm skips associations
		// of a parent whose key is the zero value, which genesis is
		if result := txn.Omit(clause.Associations).Create(&model); result.Error != nil {
			return result.Error
		}
		if len(model.Transactions) == 0 {
			return nil
		}
		return txn.Create(&model.Transactions).Error
	})
}

// TruncateBlocks deletes every block with an index of at least from
func (s *Store) TruncateBlocks(ctx context.Context, from uint64) error {
	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if result := txn.Where("block_index >= ?", from).
			Delete(&models.BlockTransaction{}); result.Error != nil {
			return result.Error
		}
		return txn.Where("block_index >= ?", from).
			Delete(&models.Block{}).
			Error
	})
}

func (s *Store) SavePending(ctx context.Context, tx chain.Transaction) error {
	model := models.PendingFromChain(tx)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) ClearPending(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.PendingTransaction{}).
		Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
