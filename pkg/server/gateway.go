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

// Package server wires the gateway's routing, identity, rate-limiting, and
// provider-dispatch collaborators into the client-facing HTTP surface: the
// OpenAI and Anthropic chat endpoints, the MCP streamable-HTTP endpoint,
// and the health probe.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/identity"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/mcp/aggregator"
	"github.com/teradata-labs/loomgate/pkg/observability"
	"github.com/teradata-labs/loomgate/pkg/ratelimit"
	"github.com/teradata-labs/loomgate/pkg/router"
)

// Provider is the common adapter contract every LLM client implements
// (pkg/llm/{openai,anthropic,gemini,bedrock}). The HTTP surface only ever
// talks to providers through this interface, never a concrete client type,
// so a request arriving on one protocol-shaped endpoint can be served by
// any upstream.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *ir.Request) (*ir.Response, error)
	Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error
}

// Gateway holds every collaborator the HTTP surface dispatches through.
// Built once at startup by the config-wiring layer and never mutated
// afterward.
type Gateway struct {
	Registry   *router.Registry
	Providers  map[string]Provider // provider key -> adapter
	Limiter    *ratelimit.Limiter
	Identity   *identity.Extractor
	Aggregator *aggregator.Aggregator // nil when no MCP servers are configured
	Protocols  map[string]gwconfig.ProtocolConfig
	// ProviderLimits holds each provider's own (non-model-specific)
	// rate-limit tree, for the provider.groups/provider.default levels of
	// the precedence lookup — the router's Entry doesn't carry
	// this, since routing and rate-limiting are separate concerns.
	ProviderLimits map[string]*gwconfig.TokenRateLimits
	// ForwardToken marks, per provider key, whether the inbound client's
	// raw Authorization header should be forwarded upstream in place of
	// the provider's own configured credential.
	// Bedrock entries never appear here — SigV4 signs the whole request,
	// so there is no bearer header to substitute.
	ForwardToken map[string]bool
	Logger       *zap.Logger
	// Tracer instruments every client-facing dispatch with the
	// gateway.llm.request / gateway.mcp.execute spans. Defaults to a
	// no-op until an exporter is wired.
	Tracer observability.Tracer

	ready func() bool // readiness predicate for /health; nil means always ready
}

// New builds a Gateway from its already-constructed collaborators.
func New(registry *router.Registry, providers map[string]Provider, limiter *ratelimit.Limiter,
	ident *identity.Extractor, agg *aggregator.Aggregator, protocols map[string]gwconfig.ProtocolConfig,
	providerLimits map[string]*gwconfig.TokenRateLimits, forwardToken map[string]bool, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Registry:       registry,
		Providers:      providers,
		Limiter:        limiter,
		Identity:       ident,
		Aggregator:     agg,
		Protocols:      protocols,
		ProviderLimits: providerLimits,
		ForwardToken:   forwardToken,
		Logger:         logger,
		Tracer:         observability.NewNoOpTracer(),
	}
}

// WithTracer installs a non-default Tracer on an already-built Gateway.
func (g *Gateway) WithTracer(tracer observability.Tracer) *Gateway {
	if tracer != nil {
		g.Tracer = tracer
	}
	return g
}

// SetReady installs the readiness predicate /health consults. Not calling
// this leaves the gateway always-ready once the HTTP server starts.
func (g *Gateway) SetReady(fn func() bool) { g.ready = fn }

// Routes builds the root mux: protocol-shaped LLM endpoints mounted at
// their configured paths, plus the fixed-path MCP and health
// endpoints.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	if pc, ok := g.Protocols["openai"]; !ok || pc.Enabled {
		path := protocolPath(pc)
		mux.HandleFunc(path+"/v1/chat/completions", g.handleChatCompletions)
		mux.HandleFunc(path+"/v1/models", g.handleModels)
	}
	if pc, ok := g.Protocols["anthropic"]; !ok || pc.Enabled {
		path := protocolPath(pc)
		mux.HandleFunc(path+"/v1/messages", g.handleMessages)
		mux.HandleFunc(path+"/v1/messages/count_tokens", g.handleCountTokens)
	}

	mux.Handle("/mcp", g.mcpHandler())
	mux.HandleFunc("/health", g.handleHealth)

	return g.corsMiddleware(g.loggingMiddleware(mux))
}

// protocolPath returns pc.Path, defaulting to empty (mount at root) when
// the protocol wasn't explicitly configured — mirrors the validator's
// enabled-by-default resolution for unconfigured protocols.
func protocolPath(pc gwconfig.ProtocolConfig) string {
	return pc.Path
}

// resolveProvider looks up the Resolution's provider in g.Providers,
// returning a TransportError if the router named a provider the gateway
// never constructed a client for (a config/wiring bug, not a client error).
func (g *Gateway) resolveProvider(providerKey string) (Provider, error) {
	p, ok := g.Providers[providerKey]
	if !ok {
		return nil, errProviderNotWired(providerKey)
	}
	return p, nil
}

// requestDeadline bounds a single upstream call; the HTTP server's own
// ReadTimeout/WriteTimeout govern the client-facing side separately.
const requestDeadline = 5 * time.Minute

func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, requestDeadline)
}
