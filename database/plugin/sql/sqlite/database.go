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

package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/blinklabs-io/votechain/database/plugin/sql/sqlstore"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Distinguishes in-memory databases opened by the same process
var memoryDbCounter atomic.Uint64

// StoreSqlite is a SQLite-backed chain store
type StoreSqlite struct {
	*sqlstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	dataDir      string
}

// NewWithOptions creates an unstarted SQLite store
func NewWithOptions(opts ...SqliteOptionFunc) *StoreSqlite {
	s := &StoreSqlite{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates and starts a SQLite store. Uses an in-memory database if
// dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*StoreSqlite, error) {
	s := NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StoreSqlite) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreSqlite) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (s *StoreSqlite) Start() error {
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var dsn string
	if s.dataDir == "" {
		// cache=shared lets every pooled connection see the same in-memory database
		dsn = fmt.Sprintf(
			"file:votechain-%d?mode=memory&cache=shared",
			memoryDbCounter.Add(1),
		)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(s.dataDir, "votechain.sqlite")
		// WAL journal mode and a longer busy timeout for concurrent readers
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			dbPath,
		)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	store, err := sqlstore.New(db, "sqlite", s.logger, s.promRegistry)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return err
	}
	s.Store = store
	s.logger.Debug(
		"opened sqlite store",
		"component", "database",
		"data_dir", s.dataDir,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreSqlite) Stop() error {
	return s.Close()
}

// Close closes the database if it was started
func (s *StoreSqlite) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
