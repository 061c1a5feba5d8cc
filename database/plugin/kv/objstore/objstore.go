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

// Package objstore lays chain data out as compressed JSON objects on a
// bucket-style object store. Each block is one object keyed by its index,
// and each pending transaction is one object keyed by its arrival time.
package objstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	BlocksPrefix  = "blocks/"
	PendingPrefix = "pending/"
	objectSuffix  = ".json.zst"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectClient is the small set of bucket operations the store needs. Keys
// are relative to any bucket prefix the client applies.
type ObjectClient interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the keys under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Store implements chain storage on top of an ObjectClient
type Store struct {
	client      ObjectClient
	logger      *slog.Logger
	metrics     *objectMetrics
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	lastPending int64
	mu          sync.Mutex
}

// New creates a store. The logger and registry may be nil.
func New(
	client ObjectClient,
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	s := &Store{
		client:  client,
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
	}
	if promRegistry != nil {
		s.metrics = newObjectMetrics(promRegistry, pluginName)
	}
	return s, nil
}

// BlockKey returns the object key for a block index. The index is zero
// padded so that lexical and numeric order agree.
func BlockKey(index uint64) string {
	return fmt.Sprintf("%s%020d%s", BlocksPrefix, index, objectSuffix)
}

// PendingKey returns the object key for a pending transaction
func PendingKey(arrival int64, tx chain.Transaction) string {
	return fmt.Sprintf(
		"%s%020d-%s%s",
		PendingPrefix,
		arrival,
		tx.Hash(),
		objectSuffix,
	)
}

func (s *Store) encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.encoder.EncodeAll(data, nil), nil
}

func (s *Store) decode(data []byte, v any) error {
	raw, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress object: %w", err)
	}
	return json.Unmarshal(raw, v)
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := s.encode(v)
	if err != nil {
		return err
	}
	if err := s.client.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.metrics.record("put", len(data))
	s.logger.Debug(
		fmt.Sprintf("put object %q (%d bytes)", key, len(data)),
		"component", "database",
	)
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	s.metrics.record("get", len(data))
	if err := s.decode(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	s.metrics.record("list", 0)
	ret := keys[:0]
	for _, key := range keys {
		if strings.HasSuffix(key, objectSuffix) {
			ret = append(ret, key)
		}
	}
	return ret, nil
}

func (s *Store) LoadBlocks(ctx context.Context) ([]chain.Block, error) {
	keys, err := s.list(ctx, BlocksPrefix)
	if err != nil {
		return nil, err
	}
	ret := make([]chain.Block, 0, len(keys))
	for _, key := range keys {
		var block chain.Block
		if err := s.get(ctx, key, &block); err != nil {
			return nil, err
		}
		ret = append(ret, block)
	}
	return ret, nil
}

func (s *Store) LoadPending(ctx context.Context) ([]chain.Transaction, error) {
	keys, err := s.list(ctx, PendingPrefix)
	if err != nil {
		return nil, err
	}
	ret := make([]chain.Transaction, 0, len(keys))
	for _, key := range keys {
		var tx chain.Transaction
		if err := s.get(ctx, key, &tx); err != nil {
			return nil, err
		}
		ret = append(ret, tx)
	}
	return ret, nil
}

// SaveBlock writes the block object, replacing any object at its index
func (s *Store) SaveBlock(ctx context.Context, block chain.Block) error {
	return s.put(ctx, BlockKey(block.Index), block)
}

func (s *Store) SavePending(ctx context.Context, tx chain.Transaction) error {
	return s.put(ctx, PendingKey(s.nextArrival(), tx), tx)
}

// nextArrival returns a strictly increasing timestamp so that pending
// objects list in submission order
func (s *Store) nextArrival() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastPending {
		now = s.lastPending + 1
	}
	s.lastPending = now
	return now
}

func (s *Store) ClearPending(ctx context.Context) error {
	keys, err := s.list(ctx, PendingPrefix)
	if err != nil {
		return err
	}
	return s.deleteKeys(ctx, keys)
}

// TruncateBlocks deletes every block object with an index of at least from
func (s *Store) TruncateBlocks(ctx context.Context, from uint64) error {
	keys, err := s.list(ctx, BlocksPrefix)
	if err != nil {
		return err
	}
	cut := BlockKey(from)
	stale := make([]string, 0, len(keys))
	for _, key := range keys {
		if key >= cut {
			stale = append(stale, key)
		}
	}
	return s.deleteKeys(ctx, stale)
}

func (s *Store) deleteKeys(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.client.Delete(ctx, key); err != nil &&
			!errors.Is(err, ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		s.metrics.record("delete", 0)
	}
	return errors.Join(errs...)
}

// Close releases the codec resources
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return nil
}
