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

// Package main is the loomgate CLI: it loads and validates configuration,
// wires every request-dispatch collaborator (router, rate limiter,
// identity extractor, provider adapters, MCP aggregator) into a
// pkg/server.Gateway, and runs the HTTP surface.
package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/identity"
	"github.com/teradata-labs/loomgate/pkg/llm"
	"github.com/teradata-labs/loomgate/pkg/llm/anthropic"
	"github.com/teradata-labs/loomgate/pkg/llm/bedrock"
	"github.com/teradata-labs/loomgate/pkg/llm/gemini"
	"github.com/teradata-labs/loomgate/pkg/llm/openai"
	"github.com/teradata-labs/loomgate/pkg/mcp/aggregator"
	"github.com/teradata-labs/loomgate/pkg/mcp/manager"
	"github.com/teradata-labs/loomgate/pkg/observability"
	"github.com/teradata-labs/loomgate/pkg/ratelimit"
	"github.com/teradata-labs/loomgate/pkg/router"
	"github.com/teradata-labs/loomgate/pkg/server"
)

// buildRegistry constructs the provider routing table in configuration
// order, compiling each provider's model_filter regex once.
func buildRegistry(cfg *gwconfig.Config) (*router.Registry, error) {
	reg := router.NewRegistry()
	for _, key := range cfg.LLM.ProviderOrder {
		p, ok := cfg.LLM.Providers[key]
		if !ok || !p.Enabled {
			continue
		}
		filter, err := router.CompileModelFilter(p.ModelFilter)
		if err != nil {
			return nil, fmt.Errorf("provider %q: invalid model_filter: %w", key, err)
		}
		reg.Register(router.Entry{
			Key:         key,
			Kind:        p.Kind,
			ModelFilter: filter,
			Models:      p.Models,
		})
	}
	return reg, nil
}

// buildProviders constructs one adapter client per enabled provider entry,
// keyed by the provider's configuration key (not its Kind) — a config may
// declare two OpenAI-compatible endpoints under different keys, e.g. an
// Azure deployment and a local vLLM, and the router resolves by key.
func buildProviders(cfg *gwconfig.Config, logger *zap.Logger) (map[string]server.Provider, error) {
	providers := make(map[string]server.Provider, len(cfg.LLM.Providers))
	for key, p := range cfg.LLM.Providers {
		if !p.Enabled {
			continue
		}
		// The gateway's own token-bucket limiter (pkg/ratelimit) is the
		// primary per-client/per-scope enforcement point; the
		// adapter's call-cadence limiter is a distinct, secondary concern
		// that protects the upstream API itself. It is disabled here for
		// every provider (no config field turns it on) to avoid double
		// throttling well-behaved traffic that already cleared the gateway
		// limiter.
		rl := llm.DefaultRateLimiterConfig()
		rl.Enabled = false
		rl.Logger = logger

		switch p.Kind {
		case gwconfig.ProviderOpenAI:
			providers[key] = openai.NewClient(openai.Config{
				APIKey:            p.APIKey,
				Endpoint:          p.BaseURL,
				RateLimiterConfig: rl,
			})
		case gwconfig.ProviderAnthropic:
			providers[key] = anthropic.NewClient(anthropic.Config{
				APIKey:            p.APIKey,
				Endpoint:          p.BaseURL,
				RateLimiterConfig: rl,
			})
		case gwconfig.ProviderGoogle:
			providers[key] = gemini.NewClient(gemini.Config{
				APIKey:            p.APIKey,
				BaseURL:           p.BaseURL,
				RateLimiterConfig: rl,
				Logger:            logger,
			})
		case gwconfig.ProviderBedrock:
			cl, err := bedrock.NewClient(bedrock.Config{
				Region:            p.AWS.Region,
				AccessKeyID:       p.AWS.AccessKeyID,
				SecretAccessKey:   p.AWS.SecretAccessKey,
				SessionToken:      p.AWS.SessionToken,
				Profile:           p.AWS.Profile,
				RateLimiterConfig: rl,
				Logger:            logger,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", key, err)
			}
			providers[key] = cl
		default:
			return nil, fmt.Errorf("provider %q: unknown type %q", key, p.Kind)
		}
	}
	return providers, nil
}

// buildProviderLimits extracts each provider's own (non-model-specific)
// rate-limit tree, for the provider.groups/provider.default precedence
// levels.
func buildProviderLimits(cfg *gwconfig.Config) map[string]*gwconfig.TokenRateLimits {
	out := make(map[string]*gwconfig.TokenRateLimits, len(cfg.LLM.Providers))
	for key, p := range cfg.LLM.Providers {
		out[key] = p.RateLimits
	}
	return out
}

// buildForwardToken extracts each provider's forward_token flag;
// Bedrock can never forward a bearer token (SigV4 signs the whole request),
// so it is omitted from the map regardless of what the config says —
// gwconfig.Validate already rejects a Bedrock entry with forward_token=true
// outright, this is just the wiring-side mirror of that invariant.
func buildForwardToken(cfg *gwconfig.Config) map[string]bool {
	out := make(map[string]bool, len(cfg.LLM.Providers))
	for key, p := range cfg.LLM.Providers {
		if p.Kind == gwconfig.ProviderBedrock {
			continue
		}
		out[key] = p.ForwardToken
	}
	return out
}

// buildIdentityExtractor wires pkg/identity from the server.client_identification
// block. Every gateway gets an extractor; one with no client_id source
// configured admits every request with an empty identity. The block's
// enabled flag is not consulted here — the validator's "rate limits
// require identification" invariant is what ties it to rate limits.
func buildIdentityExtractor(cfg *gwconfig.Config) *identity.Extractor {
	ci := cfg.Server.ClientIdentification
	idCfg := identity.Config{
		ClientID:    identity.Source{Kind: identity.SourceKind(ci.ClientID.Kind), Name: ci.ClientID.Name},
		GroupValues: ci.GroupValues,
	}
	if ci.GroupID != nil {
		idCfg.GroupID = &identity.Source{Kind: identity.SourceKind(ci.GroupID.Kind), Name: ci.GroupID.Name}
	}
	return identity.NewExtractor(idCfg)
}

// buildAggregator builds (but does not start) the MCP manager over every
// configured downstream and wraps it in an Aggregator. Returns (nil, nil, nil) when no MCP server is
// configured — a gateway may run LLM-only.
func buildAggregator(cfg *gwconfig.Config, logger *zap.Logger) (*aggregator.Aggregator, *manager.Manager, error) {
	if len(cfg.MCP.Servers) == 0 {
		return nil, nil, nil
	}

	mgrCfg := manager.Config{
		Servers:    make(map[string]manager.ServerConfig, len(cfg.MCP.Servers)),
		ClientInfo: manager.ClientInfo{Name: "loomgate", Version: "0.1.0"},
	}
	for name, s := range cfg.MCP.Servers {
		mgrCfg.Servers[name] = manager.ServerConfig{
			Enabled:    s.Enabled,
			Command:    s.Command,
			Args:       s.Args,
			Env:        s.Env,
			StderrSink: s.Stderr,
			Transport:  s.Transport,
			URL:        s.URL,
			Headers:    downstreamHeaders(s),
			Timeout:    s.Timeout,
			ToolFilter: manager.ToolFilter{All: true},
		}
	}

	mgr, err := manager.NewManager(mgrCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("mcp manager config: %w", err)
	}
	return aggregator.New(mgr, cfg.MCP, logger), mgr, nil
}

// downstreamHeaders resolves the static-token half of a downstream's auth
// config into the header map the manager attaches at connection time.
// forward_bearer downstreams get no static header here — their
// Authorization is supplied per-call via transport.WithBearerOverride,
// threaded through Aggregator.Execute.
func downstreamHeaders(s gwconfig.MCPServerConfig) map[string]string {
	if s.Auth.Kind != gwconfig.DownstreamAuthStatic || s.Auth.Static == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + s.Auth.Static}
}

// buildGateway assembles every collaborator from cfg into a ready-to-serve
// Gateway. The caller is responsible for starting mgr (if non-nil) and the
// aggregator's initial catalog refresh before traffic is admitted.
func buildGateway(cfg *gwconfig.Config, logger *zap.Logger) (*server.Gateway, *manager.Manager, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	agg, mgr, err := buildAggregator(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	// One tracer shared by the Gateway's request-dispatch spans and the MCP
	// manager's downstream-client spans, so a gateway.mcp.execute span and
	// the mcp.tools.call span it triggers land in the same trace. No-op
	// until an exporter is wired.
	tracer := observability.NewNoOpTracer()
	if mgr != nil {
		mgr.WithTracer(tracer)
	}

	gw := server.New(
		registry,
		providers,
		ratelimit.New(),
		buildIdentityExtractor(cfg),
		agg,
		cfg.LLM.Protocols,
		buildProviderLimits(cfg),
		buildForwardToken(cfg),
		logger,
	).WithTracer(tracer)
	return gw, mgr, nil
}
