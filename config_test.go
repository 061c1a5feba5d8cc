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

package votechain

import (
	"testing"

	"github.com/blinklabs-io/votechain/database"
	"github.com/blinklabs-io/votechain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, ledger.DefaultDifficulty, cfg.difficulty)
	assert.Equal(t, database.DefaultPlugin, cfg.databasePlugin)
	assert.NotNil(t, cfg.logger)
	assert.False(t, cfg.oneVotePerVoter)
	assert.Empty(t, cfg.listeners)
}

func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithDifficulty(2),
		WithMempoolCapacity(10),
		WithOneVotePerVoter(true),
		WithDatabasePlugin("sqlite"),
		WithListeners(ListenerConfig{ListenAddress: ":0"}),
		WithKeyGeneration(true),
	)
	assert.Equal(t, 2, cfg.difficulty)
	assert.Equal(t, 10, cfg.mempoolCapacity)
	assert.True(t, cfg.oneVotePerVoter)
	assert.Equal(t, "sqlite", cfg.databasePlugin)
	assert.Len(t, cfg.listeners, 1)
	assert.True(t, cfg.enableKeyGeneration)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		opts  []ConfigOptionFunc
		valid bool
	}{
		{name: "defaults", valid: true},
		{name: "difficulty too low", opts: []ConfigOptionFunc{WithDifficulty(-1)}},
		{name: "difficulty too high", opts: []ConfigOptionFunc{WithDifficulty(ledger.MaxDifficulty + 1)}},
		{name: "negative capacity", opts: []ConfigOptionFunc{WithMempoolCapacity(-1)}},
		{name: "empty listener", opts: []ConfigOptionFunc{WithListeners(ListenerConfig{})}},
		{
			name: "two listeners",
			opts: []ConfigOptionFunc{WithListeners(
				ListenerConfig{ListenAddress: ":1"},
				ListenerConfig{ListenAddress: ":2"},
			)},
		},
		{
			name:  "listener address",
			opts:  []ConfigOptionFunc{WithListeners(ListenerConfig{ListenAddress: ":0"})},
			valid: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n, err := New(NewConfig(test.opts...))
			if test.valid {
				require.NoError(t, err)
				require.NoError(t, n.Stop())
				return
			}
			assert.Error(t, err)
		})
	}
}
