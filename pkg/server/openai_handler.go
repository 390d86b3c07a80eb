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
	"sort"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/llm"
	"github.com/teradata-labs/loomgate/pkg/llm/openai"
	"github.com/teradata-labs/loomgate/pkg/observability"
)

// handleChatCompletions serves the OpenAI-shaped POST /v1/chat/completions
// endpoint, buffered or streamed depending on the request body, regardless
// of which upstream provider the router resolves the model to.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wireReq openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		g.writeOpenAIError(w, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "decoding request body"))
		return
	}

	req := openai.FromNativeRequest(&wireReq)

	ident, err := g.Identity.Extract(r)
	if err != nil {
		g.writeOpenAIError(w, err)
		return
	}

	res, err := g.Registry.Resolve(req.Model)
	if err != nil {
		g.writeOpenAIError(w, err)
		return
	}
	req.Model = res.UpstreamModel

	provider, err := g.resolveProvider(res.ProviderKey)
	if err != nil {
		g.writeOpenAIError(w, err)
		return
	}

	scope, err := g.admit(res, ident, req)
	if err != nil {
		g.writeOpenAIError(w, err)
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
			g.writeOpenAIError(w, err)
			return
		}
		g.Tracer.RecordMetric(observability.MetricLLMCalls, 1, map[string]string{"provider": res.ProviderKey, "model": req.Model})
		g.reconcile(ident, scope, predicted, &resp.Usage)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ToNativeResponse(resp))
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		err := gatewayerr.New(gatewayerr.TransportError, "streaming unsupported by response writer")
		span.RecordError(err)
		g.writeOpenAIError(w, err)
		return
	}

	streamErr := provider.Stream(ctx, req, func(c *ir.Chunk) error {
		if c.Usage != nil {
			g.reconcile(ident, scope, predicted, c.Usage)
		}
		return sw.writeOpenAIChunk(openai.WriteChunk(c))
	})
	if streamErr != nil {
		span.RecordError(streamErr)
		g.Tracer.RecordMetric(observability.MetricLLMErrors, 1, map[string]string{"provider": res.ProviderKey})
		g.Logger.Warn("stream aborted", zap.Error(streamErr))
	} else {
		g.Tracer.RecordMetric(observability.MetricLLMCalls, 1, map[string]string{"provider": res.ProviderKey, "model": req.Model})
	}
	sw.writeOpenAIDone()
}

// handleModels serves GET /v1/models: every explicitly configured
// "<provider>/<model>" pair.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	models := g.Registry.Models()
	sort.Strings(models)

	type modelObj struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	data := make([]modelObj, 0, len(models))
	for _, m := range models {
		data = append(data, modelObj{ID: m, Object: "model", OwnedBy: "loomgate"})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
}
