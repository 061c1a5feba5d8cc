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
	"testing"

	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ plugin.Store = (*StoreMysql)(nil)

func TestConnStringOptions(t *testing.T) {
	s := NewWithOptions(
		WithHost("db.example"),
		WithPort(3307),
		WithUser("votes"),
		WithPassword("secret"),
		WithDatabase("ledger"),
		WithSSLMode("skip-verify"),
	)
	cfg, err := mysql.ParseDSN(s.connString())
	require.NoError(t, err)
	assert.Equal(t, "votes", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "db.example:3307", cfg.Addr)
	assert.Equal(t, "ledger", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "skip-verify", cfg.TLSConfig)
}

func TestConnStringDSNOverride(t *testing.T) {
	s := NewWithOptions(WithDSN(" u:p@tcp(h:1)/db "))
	assert.Equal(t, "u:p@tcp(h:1)/db", s.connString())
}

func TestPluginOptions(t *testing.T) {
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeSql, "mysql", "database", "other"))
	p := NewFromCmdlineOptions()
	s, ok := p.(*StoreMysql)
	require.True(t, ok)
	assert.Equal(t, "other", s.database)
	assert.Equal(t, uint(3306), s.port)
	initCmdlineOptions()
}
