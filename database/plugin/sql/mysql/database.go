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

package mysql

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/votechain/database/plugin/sql/sqlstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// StoreMysql is a MySQL-backed chain store
type StoreMysql struct {
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

// NewWithOptions creates an unstarted MySQL store
func NewWithOptions(opts ...MysqlOptionFunc) *StoreMysql {
	s := &StoreMysql{
		host:     "localhost",
		port:     3306,
		user:     "root",
		database: "votechain",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StoreMysql) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreMysql) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// connString returns the configured DSN or builds one from the options
func (s *StoreMysql) connString() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	cfg := mysql.NewConfig()
	cfg.User = s.user
	cfg.Passwd = s.password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf(
		"%s:%s",
		s.host,
		strconv.FormatUint(uint64(s.port), 10),
	)
	cfg.DBName = s.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	cfg.Loc = time.UTC
	cfg.TLSConfig = s.sslMode
	return cfg.FormatDSN()
}

// Start implements the plugin.Plugin interface
func (s *StoreMysql) Start() error {
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	db, err := gorm.Open(
		gormmysql.Open(s.connString()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := sqlstore.New(db, "mysql", s.logger, s.promRegistry)
	if err != nil {
		sqlDB.Close()
		return err
	}
	s.Store = store
	s.logger.Info(
		"connected to mysql store",
		"component", "database",
		"host", s.host,
		"port", s.port,
		"database", s.database,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreMysql) Stop() error {
	return s.Close()
}

// Close closes the database if it was started
func (s *StoreMysql) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}
