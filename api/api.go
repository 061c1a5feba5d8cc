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

// Package api serves the vote ledger over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/blinklabs-io/votechain/auth"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	DefaultListenAddress = ":8080"
	// HealthServiceName is reported by the gRPC health endpoint
	HealthServiceName = "votechain.v1.Ledger"
	VoterIdHeader     = "X-Voter-Id"

	maxRequestBodySize = 64 << 10
	shutdownTimeout    = 30 * time.Second
)

type ApiConfig struct {
	Logger        *slog.Logger
	PromRegistry  prometheus.Registerer
	Authenticator auth.Authenticator
	Listener      ListenerConfig
	// AuthDisabled takes the voter id from the X-Voter-Id header. This is
	// only meant for local development.
	AuthDisabled        bool
	EnableKeyGeneration bool
}

type Api struct {
	config     ApiConfig
	logger     *slog.Logger
	ledger     LedgerService
	metrics    apiMetrics
	handler    http.Handler
	httpServer *http.Server
	addr       string
	mu         sync.Mutex
}

func New(cfg ApiConfig, ledger LedgerService) *Api {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Authenticator == nil {
		cfg.Authenticator = auth.Chain{}
	}
	if cfg.Listener.Listener == nil && cfg.Listener.ListenAddress == "" {
		cfg.Listener.ListenAddress = DefaultListenAddress
	}
	a := &Api{
		config: cfg,
		logger: cfg.Logger.With("component", "api"),
		ledger: ledger,
	}
	a.metrics.init(cfg.PromRegistry)
	a.handler = a.newHandler()
	return a
}

// Handler returns the root handler, serving HTTP/2 without TLS via h2c
func (a *Api) Handler() http.Handler {
	return a.handler
}

func (a *Api) newHandler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, name string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, a.metrics.instrument(name, h))
	}
	route("GET /health", "health", a.handleHealth)
	route("GET /api/v1/blockchain", "blockchain", a.handleBlockchain)
	route("GET /api/v1/chain/valid", "chain_valid", a.handleChainValid)
	route("POST /api/v1/transactions/new", "submit", a.requireIdentity(a.handleSubmit))
	route("GET /api/v1/transactions/pending", "pending", a.handlePending)
	route("GET /api/v1/mine", "mine", a.handleMine)
	route("POST /api/v1/mine", "mine", a.handleMine)
	route("GET /api/v1/generateKeys", "generate_keys", a.handleGenerateKeys)

	compress1KB := connect.WithCompressMinBytes(1024)
	mux.Handle(
		grpchealth.NewHandler(
			&ledgerChecker{ledger: a.ledger},
			compress1KB,
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
			compress1KB,
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1Alpha(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
			compress1KB,
		),
	)
	return h2c.NewHandler(mux, &http2.Server{})
}

// ledgerChecker reports serving once the ledger holds a genesis block
type ledgerChecker struct {
	ledger LedgerService
}

func (c *ledgerChecker) Check(
	_ context.Context,
	req *grpchealth.CheckRequest,
) (*grpchealth.CheckResponse, error) {
	if req.Service != "" && req.Service != HealthServiceName {
		return nil, connect.NewError(
			connect.CodeNotFound,
			fmt.Errorf("unknown service %s", req.Service),
		)
	}
	status := grpchealth.StatusNotServing
	if c.ledger.Len() > 0 {
		status = grpchealth.StatusServing
	}
	return &grpchealth.CheckResponse{Status: status}, nil
}

// Addr returns the bound listener address once started
func (a *Api) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Start binds the listener and serves in a background goroutine. The server
// shuts down when ctx is cancelled.
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := a.config.Listener.listen(ctx)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.addr = ln.Addr().String()
	a.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	a.logger.Info("API listener started on " + ln.Addr().String())

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		//nolint:contextcheck
		if err := a.Stop(shutdownCtx); err != nil {
			a.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	a.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
