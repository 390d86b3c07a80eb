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
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/mcp/transport"
)

var mcpStdioGroup string

var mcpStdioCmd = &cobra.Command{
	Use:   "mcp-stdio",
	Short: "Serve the MCP search/execute surface over stdin/stdout",
	Long: `Starts every enabled MCP downstream from the file named by --config and
speaks MCP JSON-RPC on stdin/stdout, for local clients (editors, agents)
that spawn tool servers as subprocesses. The --group flag selects which
RBAC-filtered view of the aggregated catalog this process serves; it must
appear in server.client_identification.group_values when that list is
configured.`,
	RunE: runMCPStdio,
}

func init() {
	mcpStdioCmd.Flags().StringVar(&mcpStdioGroup, "group", "", "RBAC group whose tool catalog this process serves")
	rootCmd.AddCommand(mcpStdioCmd)
}

func runMCPStdio(cmd *cobra.Command, args []string) error {
	// Log to stderr only; stdout carries MCP framing.
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
	if _, err := gwconfig.Validate(cfg); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if len(cfg.MCP.Servers) == 0 {
		return fmt.Errorf("no [mcp.servers] configured in %s", cfgFile)
	}

	gw, mgr, err := buildGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	trans := transport.NewStdioServerTransport(os.Stdin, os.Stdout)
	defer func() { _ = trans.Close() }()

	logger.Info("serving MCP over stdio", zap.String("group", mcpStdioGroup))
	for {
		msg, err := trans.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading stdin: %w", err)
		}

		resp, err := gw.ServeMCPMessage(ctx, mcpStdioGroup, "", msg)
		if err != nil {
			logger.Warn("dropping unanswerable message", zap.Error(err))
			continue
		}
		if resp == nil {
			continue // notification
		}
		if err := trans.Send(ctx, resp); err != nil {
			return fmt.Errorf("writing stdout: %w", err)
		}
	}
}
