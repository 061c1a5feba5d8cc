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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type PostgresOptionFunc func(*StorePostgres)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.promRegistry = registry
	}
}

func WithHost(host string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.host = host
	}
}

func WithPort(port uint) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.port = port
	}
}

func WithUser(user string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.user = user
	}
}

func WithPassword(password string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.password = password
	}
}

func WithDatabase(database string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.database = database
	}
}

func WithSSLMode(sslMode string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.sslMode = sslMode
	}
}

// WithDSN specifies a full connection string, overriding the other
// connection options
func WithDSN(dsn string) PostgresOptionFunc {
	return func(s *StorePostgres) {
		s.dsn = dsn
	}
}
