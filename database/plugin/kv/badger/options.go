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

package badger

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type StoreBadgerOptionFunc func(*StoreBadger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.promRegistry = registry
	}
}

// WithDataDir specifies the data directory. An empty value keeps all data
// in memory.
func WithDataDir(dataDir string) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.dataDir = dataDir
	}
}

func WithBlockCacheSize(size uint64) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.blockCacheSize = size
	}
}

func WithIndexCacheSize(size uint64) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.indexCacheSize = size
	}
}

// WithGc enables or disables periodic value log garbage collection
func WithGc(enabled bool) StoreBadgerOptionFunc {
	return func(s *StoreBadger) {
		s.gcEnabled = enabled
	}
}
