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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/votechain/database/plugin/kv/objstore"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const startupTimeout = 30 * time.Second

// StoreGCS stores chain data in a Google Cloud Storage bucket
type StoreGCS struct {
	*objstore.Store
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
}

// New creates and starts a GCS store. The location must be "gcs://bucket" or
// "gcs://bucket/prefix".
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*StoreGCS, error) {
	path, ok := strings.CutPrefix(location, "gcs://")
	bucket, prefix, _ := strings.Cut(path, "/")
	if !ok || bucket == "" {
		return nil, errors.New(
			"gcs: bucket not set (expected location 'gcs://<bucket>[/prefix]')",
		)
	}
	s := NewWithOptions(
		WithBucket(bucket),
		WithPrefix(prefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewWithOptions(opts ...StoreGCSOptionFunc) *StoreGCS {
	s := &StoreGCS{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateCredentials checks that a configured credentials file exists. An
// empty path selects application default credentials.
func ValidateCredentials(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("GCS credentials file does not exist: %s", path)
		}
		return fmt.Errorf("GCS credentials file: %w", err)
	}
	return nil
}

func (s *StoreGCS) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreGCS) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (s *StoreGCS) Start() error {
	if s.bucketName == "" {
		return errors.New("gcs: bucket not set")
	}
	if err := ValidateCredentials(s.credentialsFile); err != nil {
		return err
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if s.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(s.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gcs: failed in creating storage client: %w", err)
	}
	store, err := objstore.New(s, "gcs", s.logger, s.promRegistry)
	if err != nil {
		client.Close()
		return err
	}
	s.client = client
	s.bucket = client.Bucket(s.bucketName)
	s.Store = store
	s.logger.Debug(
		fmt.Sprintf("opened gcs store gcs://%s/%s", s.bucketName, s.prefix),
		"component", "database",
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreGCS) Stop() error {
	return s.Close()
}

// Close releases the object store and the GCS client
func (s *StoreGCS) Close() error {
	var err error
	if s.Store != nil {
		err = s.Store.Close()
		s.Store = nil
	}
	if s.client != nil {
		err = errors.Join(err, s.client.Close())
		s.client = nil
	}
	return err
}

func (s *StoreGCS) fullKey(key string) string {
	return s.prefix + key
}

// Put implements objstore.ObjectClient
func (s *StoreGCS) Put(ctx context.Context, key string, data []byte) error {
	w := s.bucket.Object(s.fullKey(key)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		s.logger.Error(
			fmt.Sprintf("gcs put %q failed: %v", key, err),
			"component", "database",
		)
		return err
	}
	return nil
}

// Get implements objstore.ObjectClient
func (s *StoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(s.fullKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, objstore.ErrObjectNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// List implements objstore.ObjectClient
func (s *StoreGCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.fullKey(prefix)})
	keys := make([]string, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements objstore.ObjectClient
func (s *StoreGCS) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(s.fullKey(key)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return objstore.ErrObjectNotFound
	}
	return err
}
