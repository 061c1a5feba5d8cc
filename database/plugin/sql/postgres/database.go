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

package postgres

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/votechain/database/plugin/sql/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// StorePostgres is a Postgres-backed chain store
type StorePostgres struct {
	*sqlstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	host         string
	user         string
	password     string
	database     string
	sslMode      string
	dsn          string
	port         uint
}

// NewWithOptions creates an unstarted Postgres store
func NewWithOptions(opts ...PostgresOptionFunc) *StorePostgres {
	s := &StorePostgres{
		host:     "localhost",
		port:     5432,
		user:     "postgres",
		database: "postgres",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StorePostgres) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StorePostgres) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// connString returns the configured DSN or builds a keyword/value one
func (s *StorePostgres) connString() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	sslMode := s.sslMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + s.host,
		"user=" + s.user,
		"dbname=" + s.database,
		"port=" + strconv.FormatUint(uint64(s.port), 10),
		"sslmode=" + sslMode,
		"TimeZone=UTC",
	}
	if s.password != "" {
		parts = append(parts, "password="+s.password)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (s *StorePostgres) Start() error {
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	db, err := gorm.Open(
		postgres.Open(s.connString()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return err
	}
	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := sqlstore.New(db, "postgres", s.logger, s.promRegistry)
	if err != nil {
		sqlDB.Close()
		return err
	}
	s.Store = store
	s.logger.Info(
		"connected to postgres store",
		"component", "database",
		"host", s.host,
		"port", s.port,
		"database", s.database,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StorePostgres) Stop() error {
	return s.Close()
}

// Close closes the database if it was started
func (s *StorePostgres) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
