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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/votechain"
	"github.com/blinklabs-io/votechain/auth"
	"github.com/blinklabs-io/votechain/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAuthenticator builds the authenticator chain from config. Static tokens
// are tried before JWTs. The chain is empty when nothing is configured.
func NewAuthenticator(cfg *config.Config) (auth.Chain, error) {
	var chain auth.Chain
	if cfg.AuthTokensFile != "" {
		tokens, err := auth.LoadStaticTokens(cfg.AuthTokensFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tokens)
	}
	if cfg.AuthJwtSecretFile != "" || cfg.AuthJwtPublicKeyFile != "" {
		jwtAuth, err := auth.NewJWTAuthenticatorFromFiles(
			cfg.AuthJwtSecretFile,
			cfg.AuthJwtPublicKeyFile,
			cfg.AuthJwtIssuer,
			cfg.AuthJwtAudience,
		)
		if err != nil {
			return nil, err
		}
		chain = append(chain, jwtAuth)
	}
	return chain, nil
}

// NewNodeConfig translates the loaded config into node options
func NewNodeConfig(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (votechain.Config, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return votechain.Config{}, err
	}
	authChain, err := NewAuthenticator(cfg)
	if err != nil {
		return votechain.Config{}, fmt.Errorf("failed to configure auth: %w", err)
	}
	if len(authChain) == 0 && cfg.AuthDisabled {
		logger.Warn(
			"authentication disabled, voter ids are taken from the X-Voter-Id header",
			"component", "node",
		)
	}
	opts := []votechain.ConfigOptionFunc{
		votechain.WithLogger(logger),
		votechain.WithPrometheusRegistry(promRegistry),
		votechain.WithDifficulty(cfg.Difficulty),
		votechain.WithMempoolCapacity(cfg.MempoolCapacity),
		votechain.WithOneVotePerVoter(cfg.OneVotePerVoter),
		votechain.WithDatabasePlugin(cfg.DatabasePlugin),
		votechain.WithAuthDisabled(cfg.AuthDisabled),
		votechain.WithKeyGeneration(cfg.EnableKeyGeneration),
		votechain.WithTracing(cfg.Tracing),
		votechain.WithTracingStdout(cfg.TracingStdout),
		votechain.WithShutdownTimeout(shutdownTimeout),
	}
	if len(authChain) > 0 {
		opts = append(opts, votechain.WithAuthenticator(authChain))
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			votechain.WithListeners(
				votechain.ListenerConfig{
					ListenNetwork: "tcp",
					ListenAddress: cfg.ApiAddress(),
					ReuseAddress:  true,
				},
			),
		)
	}
	return votechain.NewConfig(opts...), nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	nodeCfg, err := NewNodeConfig(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	n, err := votechain.New(nodeCfg)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component",
			"node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	if err := n.Start(); err != nil {
		logger.Error("node error", "error", err)
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		shutdownMetrics()
		return err
	}

	<-signalCtx.Done()
	logger.Info("signal received, initiating graceful shutdown")
	shutdownMetrics()
	if err := n.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
