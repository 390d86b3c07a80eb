// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
)

var (
	serveAddr      string
	serveHotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	Long: `Loads the file named by --config, validates it, starts every enabled MCP
downstream, builds the provider/router/rate-limit collaborators, and serves
the OpenAI-compatible, Anthropic-compatible, and MCP endpoints named in the
[llm.protocols] and [mcp] blocks.

Press Ctrl+C to gracefully shut down.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "address the gateway HTTP server listens on")
	serveCmd.Flags().BoolVar(&serveHotReload, "hot-reload", false, "watch --config and log when a changed, valid configuration needs a restart")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loader := gwconfig.NewLoader(logger)
	cfg, err := loader.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfgFile, err)
	}
	if result, err := gwconfig.Validate(cfg); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	} else {
		for _, w := range result.Warnings {
			logger.Warn("config warning", zap.String("warning", w))
		}
	}

	gw, mgr, err := buildGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mgr != nil {
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("starting mcp servers: %w", err)
		}
		defer func() {
			if err := mgr.Stop(); err != nil {
				logger.Warn("error stopping mcp servers", zap.Error(err))
			}
		}()
		if err := gw.Aggregator.RefreshCatalog(ctx); err != nil {
			logger.Warn("initial MCP catalog refresh failed, continuing with an empty catalog", zap.Error(err))
		}
	}

	var ready atomic.Bool
	ready.Store(true)
	gw.SetReady(ready.Load)

	if serveHotReload {
		if err := loader.Watch(cfgFile, func(newCfg *gwconfig.Config, result gwconfig.ValidationResult) {
			// Re-wiring providers/routes live would require swapping the
			// Gateway's collaborators under a lock; the running process
			// keeps its current wiring and readiness, and only logs that
			// an operator restart is needed to pick up the new config.
			logger.Warn("configuration changed on disk; restart loomgate to pick it up",
				zap.Int("warnings", len(result.Warnings)))
		}); err != nil {
			logger.Warn("hot reload watch failed to start", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:    serveAddr,
		Handler: gw.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loomgate listening", zap.String("addr", serveAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
		logger.Info("shutting down gracefully")
	}

	ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown timed out, forcing close", zap.Error(err))
		return srv.Close()
	}
	logger.Info("shutdown complete")
	return nil
}
