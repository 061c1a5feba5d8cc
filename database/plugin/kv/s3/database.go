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

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/votechain/database/plugin/kv/objstore"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultTimeout = 60 * time.Second

// StoreS3 stores chain data in an AWS S3 bucket
type StoreS3 struct {
	*objstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	client       *s3.Client
	endpoint     string
	bucket       string
	prefix       string
	region       string
	timeout      time.Duration
}

// New creates and starts an S3 store. The location must be "s3://bucket" or
// "s3://bucket/prefix".
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*StoreS3, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
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

// ParseLocation splits an s3:// URL into its bucket and key prefix
func ParseLocation(location string) (string, string, error) {
	path, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", errors.New(
			"s3: expected location 's3://<bucket>[/prefix]'",
		)
	}
	bucket, prefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return "", "", errors.New("s3: bucket not set")
	}
	return bucket, prefix, nil
}

func NewWithOptions(opts ...StoreS3OptionFunc) *StoreS3 {
	s := &StoreS3{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StoreS3) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreS3) SetPromRegistry(registry prometheus.Registerer) {
	s.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (s *StoreS3) Start() error {
	if s.bucket == "" {
		return errors.New("s3: bucket not set")
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ctx, cancel := s.opContext(context.Background())
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3: load default AWS config: %w", err)
	}
	if s.region != "" {
		awsCfg.Region = s.region
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
			o.UsePathStyle = true
		}
	})
	store, err := objstore.New(s, "s3", s.logger, s.promRegistry)
	if err != nil {
		return err
	}
	s.Store = store
	s.logger.Debug(
		fmt.Sprintf("opened s3 store s3://%s/%s", s.bucket, s.prefix),
		"component", "database",
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreS3) Stop() error {
	return s.Close()
}

// Close releases the object store. The S3 client needs no explicit closing.
func (s *StoreS3) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}

func (s *StoreS3) opContext(
	parent context.Context,
) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func (s *StoreS3) fullKey(key string) string {
	return s.prefix + key
}

// Put implements objstore.ObjectClient
func (s *StoreS3) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		s.logger.Error(
			fmt.Sprintf("s3 put %q failed: %v", key, err),
			"component", "database",
		)
		return err
	}
	return nil
}

// Get implements objstore.ObjectClient
func (s *StoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, objstore.ErrObjectNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List implements objstore.ObjectClient
func (s *StoreS3) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	paginator := s3.NewListObjectsV2Paginator(
		s.client,
		&s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.fullKey(prefix)),
		},
	)
	keys := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(
				keys,
				strings.TrimPrefix(aws.ToString(obj.Key), s.prefix),
			)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements objstore.ObjectClient
func (s *StoreS3) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return objstore.ErrObjectNotFound
		}
		return err
	}
	return nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
