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
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/llm"
	"github.com/teradata-labs/loomgate/pkg/llm/anthropic"
	"github.com/teradata-labs/loomgate/pkg/observability"
)

// handleMessages serves the Anthropic-shaped POST /v1/messages endpoint.
// Validation (e.g. duplicate tool_use ids) runs before any upstream
// dispatch, so a malformed request never burns rate-limit budget or
// touches a provider.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wireReq anthropic.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		g.writeAnthropicError(w, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "decoding request body"))
		return
	}

	req := anthropic.FromNativeRequest(&wireReq)

	if err := anthropic.Validate(req.Messages); err != nil {
		g.writeAnthropicError(w, err)
		return
	}

	ident, err := g.Identity.Extract(r)
	if err != nil {
		g.writeAnthropicError(w, err)
		return
	}

	res, err := g.Registry.Resolve(req.Model)
	if err != nil {
		g.writeAnthropicError(w, err)
		return
	}
	req.Model = res.UpstreamModel

	provider, err := g.resolveProvider(res.ProviderKey)
	if err != nil {
		g.writeAnthropicError(w, err)
		return
	}

	scope, err := g.admit(res, ident, req)
	if err != nil {
		g.writeAnthropicError(w, err)
		return
	}

	ctx, cancel := withDeadline(r.Context())
	defer cancel()
	if g.ForwardToken[res.ProviderKey] {
		ctx = llm.WithForwardedToken(ctx, r.Header.Get("Authorization"))
	}
	ctx = llm.WithExtraHeaders(ctx, modelHeaders(res))

	ctx, span := g.Tracer.StartSpan(ctx, observability.SpanGatewayLLMRequest,
		observability.WithAttribute(observability.AttrProvider, res.ProviderKey),
		observability.WithAttribute(observability.AttrModel, req.Model),
		observability.WithAttribute(observability.AttrGroupID, ident.GroupID),
		observability.WithAttribute(observability.AttrStreaming, req.Stream),
	)
	defer g.Tracer.EndSpan(span)

	predicted := predictedTokens(req)

	if !req.Stream {
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			g.Tracer.RecordMetric(observability.MetricLLMErrors, 1, map[string]string{"provider": res.ProviderKey})
			g.writeAnthropicError(w, err)
			return
		}
		g.Tracer.RecordMetric(observability.MetricLLMCalls, 1, map[string]string{"provider": res.ProviderKey, "model": req.Model})
		g.reconcile(ident, scope, predicted, &resp.Usage)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropic.ToNativeResponse(resp))
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		err := gatewayerr.New(gatewayerr.TransportError, "streaming unsupported by response writer")
		span.RecordError(err)
		g.writeAnthropicError(w, err)
		return
	}

	enc := anthropic.NewEncoder("", req.Model)
	streamErr := provider.Stream(ctx, req, func(c *ir.Chunk) error {
		if c.Usage != nil {
			g.reconcile(ident, scope, predicted, c.Usage)
		}
		for _, ev := range enc.Encode(c) {
			if err := sw.writeAnthropicEvent(ev.Type, ev.Data); err != nil {
				return err
			}
		}
		return nil
	})
	if streamErr != nil {
		span.RecordError(streamErr)
		g.Tracer.RecordMetric(observability.MetricLLMErrors, 1, map[string]string{"provider": res.ProviderKey})
		g.Logger.Warn("stream aborted", zap.Error(streamErr))
	} else {
		g.Tracer.RecordMetric(observability.MetricLLMCalls, 1, map[string]string{"provider": res.ProviderKey, "model": req.Model})
	}
}

// countTokensResponse is the literal Anthropic count_tokens response shape;
// cache fields are always zero since the gateway has no prompt cache of its
// own.
type countTokensResponse struct {
	Type                     string `json:"type"`
	InputTokens              int    `json:"input_tokens"`
	CacheCreationInputTokens int    `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int    `json:"cache_read_input_tokens"`
}

// handleCountTokens serves POST /v1/messages/count_tokens using the chars/4
// approximation — no upstream call, no rate-limit admission.
func (g *Gateway) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wireReq anthropic.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		g.writeAnthropicError(w, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "decoding request body"))
		return
	}

	req := anthropic.FromNativeRequest(&wireReq)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(countTokensResponse{
		Type:        "message_count_tokens_result",
		InputTokens: countTokensApprox(req),
	})
}
