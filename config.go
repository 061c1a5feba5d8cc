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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/votechain/api"
	"github.com/blinklabs-io/votechain/auth"
	"github.com/blinklabs-io/votechain/database"
	"github.com/blinklabs-io/votechain/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

type ListenerConfig = api.ListenerConfig

type Config struct {
	promRegistry        prometheus.Registerer
	logger              *slog.Logger
	authenticator       auth.Authenticator
	databasePlugin      string
	listeners           []ListenerConfig
	difficulty          int
	mempoolCapacity     int
	shutdownTimeout     time.Duration
	oneVotePerVoter     bool
	authDisabled        bool
	enableKeyGeneration bool
	tracing             bool
	tracingStdout       bool
}

func (n *Node) configValidate() error {
	if n.config.difficulty < 0 || n.config.difficulty > ledger.MaxDifficulty {
		return fmt.Errorf(
			"invalid difficulty %d: must be between 0 and %d",
			n.config.difficulty,
			ledger.MaxDifficulty,
		)
	}
	if n.config.mempoolCapacity < 0 {
		return fmt.Errorf(
			"invalid mempool capacity: %d",
			n.config.mempoolCapacity,
		)
	}
	if len(n.config.listeners) > 1 {
		return errors.New("only one API listener is supported")
	}
	for _, listener := range n.config.listeners {
		if listener.Listener != nil {
			continue
		}
		if listener.ListenAddress != "" {
			continue
		}
		return errors.New(
			"listener must provide net.Listener or listen address value",
		)
	}
	if n.config.authenticator == nil && !n.config.authDisabled {
		n.config.logger.Warn(
			"no authenticator configured, all vote submissions will be rejected",
		)
	}
	return nil
}

type ConfigOptionFunc func(*Config)

func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		difficulty:     ledger.DefaultDifficulty,
		databasePlugin: database.DefaultPlugin,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDifficulty specifies the number of leading zero hex characters required
// in a block hash. The default is 4
func WithDifficulty(difficulty int) ConfigOptionFunc {
	return func(c *Config) {
		c.difficulty = difficulty
	}
}

// WithMempoolCapacity sets the maximum number of pending transactions. Zero
// means unbounded
func WithMempoolCapacity(capacity int) ConfigOptionFunc {
	return func(c *Config) {
		c.mempoolCapacity = capacity
	}
}

// WithOneVotePerVoter rejects a second vote from a voter id already in the
// chain or the pool
func WithOneVotePerVoter(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.oneVotePerVoter = enabled
	}
}

// WithDatabasePlugin specifies the storage plugin. Plugin options are set
// through the plugin registry before the node starts
func WithDatabasePlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.databasePlugin = plugin
	}
}

// WithListeners specifies the listener config for the API server. Without a
// listener the API is not started
func WithListeners(listeners ...ListenerConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.listeners = append(c.listeners, listeners...)
	}
}

// WithAuthenticator specifies how vote submitters are identified
func WithAuthenticator(authenticator auth.Authenticator) ConfigOptionFunc {
	return func(c *Config) {
		c.authenticator = authenticator
	}
}

// WithAuthDisabled takes the voter id from the X-Voter-Id request header
// instead of an authenticator. This is only meant for local development
func WithAuthDisabled(disabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.authDisabled = disabled
	}
}

// WithKeyGeneration enables the demo key generation endpoint
func WithKeyGeneration(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.enableKeyGeneration = enabled
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
