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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/votechain/api"
	"github.com/blinklabs-io/votechain/database"
	"github.com/blinklabs-io/votechain/event"
	"github.com/blinklabs-io/votechain/ledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Node struct {
	eventBus       *event.EventBus
	db             *database.Database
	ledger         *ledger.Ledger
	api            *api.Api
	tracerProvider trace.TracerProvider
	cancel         context.CancelFunc
	shutdownFuncs  []func(context.Context) error
	config         Config
	done           chan struct{}
	startOnce      sync.Once
	shutdownOnce   sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	if err := n.Start(); err != nil {
		return err
	}
	// Wait for shutdown signal
	<-n.done
	return nil
}

// Start opens storage, loads the ledger and starts the API server without
// blocking
func (n *Node) Start() error {
	err := errors.New("node already started")
	n.startOnce.Do(func() {
		err = n.start()
	})
	return err
}

func (n *Node) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	// Configure tracing
	n.tracerProvider = otel.GetTracerProvider()
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(database.Config{
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Plugin:       n.config.databasePlugin,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Load ledger
	l, err := ledger.NewLedger(ledger.LedgerConfig{
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
		EventBus:        n.eventBus,
		TracerProvider:  n.tracerProvider,
		Gateway:         n.db,
		Difficulty:      n.config.difficulty,
		MempoolCapacity: n.config.mempoolCapacity,
		OneVotePerVoter: n.config.oneVotePerVoter,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	n.ledger = l
	n.eventBus.SubscribeFunc(ledger.BlockMinedEventType, n.handleBlockMinedEvent)
	if err := n.ledger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ledger: %w", err)
	}
	// Configure API
	if len(n.config.listeners) > 0 {
		n.api = api.New(
			api.ApiConfig{
				Logger:              n.config.logger,
				PromRegistry:        n.config.promRegistry,
				Authenticator:       n.config.authenticator,
				Listener:            n.config.listeners[0],
				AuthDisabled:        n.config.authDisabled,
				EnableKeyGeneration: n.config.enableKeyGeneration,
			},
			n.ledger,
		)
		if err := n.api.Start(ctx); err != nil {
			return err
		}
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"chain_length", n.ledger.Len(),
		"difficulty", n.config.difficulty,
		"database_plugin", n.db.Plugin(),
	)
	return nil
}

func (n *Node) handleBlockMinedEvent(evt event.Event) {
	e, ok := evt.Data.(ledger.BlockMinedEvent)
	if !ok {
		return
	}
	n.config.logger.Info(
		"block mined",
		"component", "node",
		"index", e.Block.Index,
		"hash", e.Block.Hash,
		"transactions", len(e.Block.Transactions),
		"duration", e.Duration.String(),
	)
}

// Ledger returns the node's ledger, or nil before Start
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// ApiAddr returns the bound API address, or an empty string when the API is
// not running
func (n *Node) ApiAddr() string {
	if n.api == nil {
		return ""
	}
	return n.api.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if n.cancel != nil {
		n.cancel()
	}

	// Phase 2: Close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
