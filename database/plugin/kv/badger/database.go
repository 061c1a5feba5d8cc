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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/votechain/chain"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

const gcInterval = 5 * time.Minute

var (
	blockKeyPrefix   = []byte("b/")
	pendingKeyPrefix = []byte("p/")

	ErrNotStarted = errors.New("badger store not started")
)

// StoreBadger stores chain data in badger. Values are CBOR encoded and keys
// carry a big endian counter so that iteration order matches chain order.
type StoreBadger struct {
	promRegistry   prometheus.Registerer
	db             *badger.DB
	logger         *slog.Logger
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	gcRuns         prometheus.Counter
	dataDir        string
	gcWg           sync.WaitGroup
	mu             sync.Mutex
	blockCacheSize uint64
	indexCacheSize uint64
	pendingSeq     uint64
	gcEnabled      bool
}

// New creates and starts a badger store
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*StoreBadger, error) {
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

func NewWithOptions(opts ...StoreBadgerOptionFunc) *StoreBadger {
	s := &StoreBadger{
		gcEnabled:      true,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StoreBadger) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreBadger) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (s *StoreBadger) Start() error {
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
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
		badgerOpts = badger.DefaultOptions(filepath.Join(s.dataDir, "kv")).
			WithBlockCacheSize(int64(s.blockCacheSize)). //nolint:gosec // operator supplied cache size
			WithIndexCacheSize(int64(s.indexCacheSize)). //nolint:gosec // operator supplied cache size
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(s.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	if err := s.loadPendingSeq(); err != nil {
		_ = s.Close()
		return err
	}
	if s.promRegistry != nil {
		s.registerMetrics()
	}
	// Value log GC is meaningless for in-memory stores
	if s.gcEnabled && s.dataDir != "" {
		s.gcTicker = time.NewTicker(gcInterval)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGc(s.gcTicker, s.gcStopCh)
	}
	s.logger.Debug(
		"opened badger store",
		"component", "database",
		"data_dir", s.dataDir,
	)
	return nil
}

func (s *StoreBadger) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := s.db.RunValueLogGC(0.5)
			if err != nil {
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("badger: GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				if s.gcRuns != nil {
					s.gcRuns.Inc()
				}
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (s *StoreBadger) Stop() error {
	return s.Close()
}

// Close stops GC and closes the database
func (s *StoreBadger) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStopCh)
		s.gcWg.Wait()
		s.gcTicker = nil
		s.gcStopCh = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the database handle
func (s *StoreBadger) DB() *badger.DB {
	return s.db
}

func blockKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64(
		append([]byte{}, blockKeyPrefix...),
		index,
	)
}

func pendingKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(
		append([]byte{}, pendingKeyPrefix...),
		seq,
	)
}

// loadPendingSeq resumes the pending counter after the highest stored key
func (s *StoreBadger) loadPendingSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:  pendingKeyPrefix,
			Reverse: true,
		})
		defer it.Close()
		// Reverse seeks need a key past every entry with the prefix
		it.Seek(append(append([]byte{}, pendingKeyPrefix...), 0xff))
		if it.ValidForPrefix(pendingKeyPrefix) {
			key := it.Item().Key()
			s.pendingSeq = binary.BigEndian.Uint64(key[len(pendingKeyPrefix):])
		}
		return nil
	})
}

func (s *StoreBadger) handle(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, ErrNotStarted
	}
	return s.db, nil
}

func loadPrefix[T any](db *badger.DB, prefix []byte) ([]T, error) {
	ret := make([]T, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         prefix,
			PrefetchValues: true,
			PrefetchSize:   100,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var tmp T
			if _, err := cbor.Decode(val, &tmp); err != nil {
				return fmt.Errorf("decode key %x: %w", item.Key(), err)
			}
			ret = append(ret, tmp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *StoreBadger) LoadBlocks(ctx context.Context) ([]chain.Block, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return loadPrefix[chain.Block](db, blockKeyPrefix)
}

func (s *StoreBadger) LoadPending(
	ctx context.Context,
) ([]chain.Transaction, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return loadPrefix[chain.Transaction](db, pendingKeyPrefix)
}

// SaveBlock writes the block, replacing any block at the same index
func (s *StoreBadger) SaveBlock(ctx context.Context, block chain.Block) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	data, err := cbor.Encode(block)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(block.Index), data)
	})
}

// TruncateBlocks deletes every block with an index of at least from
func (s *StoreBadger) TruncateBlocks(ctx context.Context, from uint64) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	var keys [][]byte
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: blockKeyPrefix})
		defer it.Close()
		for it.Seek(blockKey(from)); it.ValidForPrefix(blockKeyPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *StoreBadger) SavePending(
	ctx context.Context,
	tx chain.Transaction,
) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	data, err := cbor.Encode(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pendingSeq++
	seq := s.pendingSeq
	s.mu.Unlock()
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(seq), data)
	})
}

func (s *StoreBadger) ClearPending(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	return db.DropPrefix(pendingKeyPrefix)
}
