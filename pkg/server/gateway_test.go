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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/identity"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/mcp/aggregator"
	"github.com/teradata-labs/loomgate/pkg/ratelimit"
	"github.com/teradata-labs/loomgate/pkg/router"
)

// mockProvider satisfies Provider with canned behavior, standing in for
// any upstream regardless of which protocol the client spoke.
type mockProvider struct {
	completeFn func(ctx context.Context, req *ir.Request) (*ir.Response, error)
	streamFn   func(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req *ir.Request) (*ir.Response, error) {
	return m.completeFn(ctx, req)
}

func (m *mockProvider) Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error {
	return m.streamFn(ctx, req, onChunk)
}

func cannedResponse(text string) *ir.Response {
	return &ir.Response{
		ID:    "resp_1",
		Model: "gpt-3.5-turbo",
		Choices: []ir.Choice{{
			Message:      ir.UnifiedMessage{Role: ir.RoleAssistant, Content: ir.TextContainer(text)},
			FinishReason: &ir.FinishReason{Kind: ir.FinishStop},
		}},
		Usage: ir.Usage{PromptTokens: 10, CompletionTokens: 15, TotalTokens: 25},
	}
}

func testGateway(t *testing.T, provider Provider, modelLimits *gwconfig.TokenRateLimits) *Gateway {
	t.Helper()

	reg := router.NewRegistry()
	reg.Register(router.Entry{
		Key:  "test_openai",
		Kind: gwconfig.ProviderOpenAI,
		Models: map[string]gwconfig.ModelEntry{
			"gpt-3.5-turbo": {RateLimits: modelLimits},
		},
	})

	ident := identity.NewExtractor(identity.Config{
		ClientID:    identity.Source{Kind: identity.SourceHTTPHeader, Name: "X-Client-Id"},
		GroupID:     &identity.Source{Kind: identity.SourceHTTPHeader, Name: "X-Client-Group"},
		GroupValues: []string{"basic", "premium"},
	})

	protocols := map[string]gwconfig.ProtocolConfig{
		"openai":    {Enabled: true, Path: "/llm"},
		"anthropic": {Enabled: true, Path: "/llm/anthropic"},
	}

	return New(
		reg,
		map[string]Provider{"test_openai": provider},
		ratelimit.New(),
		ident,
		aggregator.New(nil, gwconfig.MCPConfig{}, nil),
		protocols,
		map[string]*gwconfig.TokenRateLimits{},
		map[string]bool{},
		nil,
	)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Client-Id", "tester")
	req.Header.Set("X-Client-Group", "basic")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatCompletions_BufferedAcrossGateway(t *testing.T) {
	provider := &mockProvider{
		completeFn: func(_ context.Context, req *ir.Request) (*ir.Response, error) {
			assert.Equal(t, "gpt-3.5-turbo", req.Model)
			return cannedResponse("Hello back"), nil
		},
	}
	gw := testGateway(t, provider, nil)

	rec := doJSON(t, gw.Routes(), http.MethodPost, "/llm/v1/chat/completions",
		`{"model":"test_openai/gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"max_tokens":10}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello back", resp.Choices[0].Message.Content)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
}

func TestChatCompletions_GroupRateLimitDeniesOnceWindowSpent(t *testing.T) {
	provider := &mockProvider{
		completeFn: func(context.Context, *ir.Request) (*ir.Response, error) {
			return cannedResponse("ok"), nil
		},
	}
	limits := &gwconfig.TokenRateLimits{
		Groups: map[string]gwconfig.Window{
			"basic": {InputTokenLimit: 20, Interval: time.Minute},
		},
	}
	gw := testGateway(t, provider, limits)
	routes := gw.Routes()

	body := `{"model":"test_openai/gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"max_tokens":10}`

	first := doJSON(t, routes, http.MethodPost, "/llm/v1/chat/completions", body, nil)
	require.Equal(t, http.StatusOK, first.Code)

	// Each request predicts about 1 token and the upstream reports 10 prompt
	// tokens, so after reconciliation each request costs 10: the second one
	// spends the rest of the 20-token window and the third is denied.
	second := doJSON(t, routes, http.MethodPost, "/llm/v1/chat/completions", body, nil)
	third := doJSON(t, routes, http.MethodPost, "/llm/v1/chat/completions", body, nil)
	codes := []int{second.Code, third.Code}
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestChatCompletions_UnknownModelIs404(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)
	rec := doJSON(t, gw.Routes(), http.MethodPost, "/llm/v1/chat/completions",
		`{"model":"nobody-serves-this","messages":[{"role":"user","content":"hi"}]}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessages_DuplicateToolUseIDRejectedBeforeDispatch(t *testing.T) {
	dispatched := false
	provider := &mockProvider{
		completeFn: func(context.Context, *ir.Request) (*ir.Response, error) {
			dispatched = true
			return cannedResponse("nope"), nil
		},
	}
	gw := testGateway(t, provider, nil)

	body := `{
		"model": "test_openai/gpt-3.5-turbo",
		"max_tokens": 10,
		"messages": [
			{"role": "user", "content": "run the tool"},
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_A", "name": "calc", "input": {}},
				{"type": "tool_use", "id": "toolu_A", "name": "calc", "input": {}}
			]}
		]
	}`
	rec := doJSON(t, gw.Routes(), http.MethodPost, "/llm/anthropic/v1/messages", body, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, dispatched, "a malformed request must never reach the provider")

	var resp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "invalid_request_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "toolu_A")
}

func TestChatCompletions_StreamingEmitsOpenAIFramesAndDone(t *testing.T) {
	provider := &mockProvider{
		streamFn: func(_ context.Context, _ *ir.Request, onChunk func(*ir.Chunk) error) error {
			chunks := []*ir.Chunk{
				{ID: "resp_1", Delta: ir.ChunkDelta{Role: ir.RoleAssistant}},
				{ID: "resp_1", Delta: ir.ChunkDelta{Text: "Hello "}},
				{ID: "resp_1", Delta: ir.ChunkDelta{Text: "world"}},
				{ID: "resp_1", FinishReason: &ir.FinishReason{Kind: ir.FinishStop},
					Usage: &ir.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
			}
			for _, c := range chunks {
				if err := onChunk(c); err != nil {
					return err
				}
			}
			return nil
		},
	}
	gw := testGateway(t, provider, nil)

	rec := doJSON(t, gw.Routes(), http.MethodPost, "/llm/v1/chat/completions",
		`{"model":"test_openai/gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"stream":true}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), "stream must end with the DONE sentinel")

	// Concatenating the deltas reconstructs the full text.
	var text strings.Builder
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		for _, ch := range chunk.Choices {
			text.WriteString(ch.Delta.Content)
		}
	}
	assert.Equal(t, "Hello world", text.String())
}

func TestMCP_ExecuteInvisibleToolIsMethodNotFound(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute","arguments":{"name":"premium__calc","arguments":{}}}}`
	rec := doJSON(t, gw.Routes(), http.MethodPost, "/mcp", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestMCP_ToolsListExposesSearchAndExecute(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec := doJSON(t, gw.Routes(), http.MethodPost, "/mcp", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Tools, 2)
	assert.Equal(t, "search", resp.Result.Tools[0].Name)
	assert.Equal(t, "execute", resp.Result.Tools[1].Name)
}

func TestCountTokens_ApproximationShape(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)

	body := `{"model":"test_openai/gpt-3.5-turbo","messages":[{"role":"user","content":"abcdefgh"}]}`
	rec := doJSON(t, gw.Routes(), http.MethodPost, "/llm/anthropic/v1/messages/count_tokens", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Type                     string `json:"type"`
		InputTokens              int    `json:"input_tokens"`
		CacheCreationInputTokens int    `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int    `json:"cache_read_input_tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "message_count_tokens_result", resp.Type)
	assert.Equal(t, 2, resp.InputTokens) // 8 chars / 4
	assert.Equal(t, 0, resp.CacheCreationInputTokens)
	assert.Equal(t, 0, resp.CacheReadInputTokens)
}

func TestModels_ListsProviderQualifiedIDs(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)

	rec := doJSON(t, gw.Routes(), http.MethodGet, "/llm/v1/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "test_openai/gpt-3.5-turbo", resp.Data[0].ID)
}

func TestHealth_ReadyAfterStartup(t *testing.T) {
	gw := testGateway(t, &mockProvider{}, nil)

	rec := doJSON(t, gw.Routes(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	gw.SetReady(func() bool { return false })
	rec = doJSON(t, gw.Routes(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScopeForLevel_MatchesResolvedPrecedence(t *testing.T) {
	res := &router.Resolution{ProviderKey: "openai", UpstreamModel: "gpt-4o"}
	ident := identity.Identity{ClientID: "c", GroupID: "basic"}

	assert.Equal(t, "openai/gpt-4o/basic", scopeForLevel(res, ident, gwconfig.LevelModelGroup))
	assert.Equal(t, "openai/gpt-4o/*", scopeForLevel(res, ident, gwconfig.LevelModelDefault))
	assert.Equal(t, "openai/*/basic", scopeForLevel(res, ident, gwconfig.LevelProviderGroup))
	assert.Equal(t, "openai/*/*", scopeForLevel(res, ident, gwconfig.LevelProviderDefault))
}
