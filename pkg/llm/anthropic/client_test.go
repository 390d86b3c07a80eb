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
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, DefaultEndpoint, client.endpoint)
	assert.Equal(t, DefaultAPIVersion, client.apiVersion)
}

func TestClient_Complete_SimpleText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("anthropic-version"))

		resp := MessagesResponse{
			ID:         "msg_123",
			Type:       "message",
			Role:       "assistant",
			Model:      "claude-3-5-sonnet-20241022",
			StopReason: "end_turn",
			Content:    []ContentBlock{{Type: "text", Text: "Hello! How can I help you?"}},
			Usage:      Usage{InputTokens: 10, OutputTokens: 20},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})

	maxTokens := 1024
	req := &ir.Request{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: &maxTokens,
		Messages: []ir.UnifiedMessage{
			{Role: ir.RoleUser, Content: ir.TextContainer("Hello")},
		},
	}

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello! How can I help you?", resp.Choices[0].Message.Content.PlainText())
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 20, resp.Usage.CompletionTokens)
	assert.Equal(t, 30, resp.Usage.TotalTokens)
	assert.Equal(t, ir.FinishStop, resp.Choices[0].FinishReason.Kind)
}

func TestClient_Complete_WithToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := MessagesResponse{
			ID:         "msg_123",
			Type:       "message",
			Role:       "assistant",
			StopReason: "tool_use",
			Content: []ContentBlock{
				{Type: "text", Text: "I'll check the weather."},
				{Type: "tool_use", ID: "tool_123", Name: "get_weather", Input: json.RawMessage(`{"city":"San Francisco"}`)},
			},
			Usage: Usage{InputTokens: 50, OutputTokens: 100},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})

	req := &ir.Request{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []ir.UnifiedMessage{
			{Role: ir.RoleUser, Content: ir.TextContainer("What's the weather in San Francisco?")},
		},
		Tools: []ir.UnifiedTool{
			{Name: "get_weather", Description: "Get weather for a city", Parameters: &ir.JSONSchema{
				Type:       "object",
				Properties: map[string]*ir.JSONSchema{"city": {Type: "string"}},
				Required:   []string{"city"},
			}},
		},
	}

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)

	tc := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "tool_123", tc.ID)
	assert.Equal(t, "get_weather", tc.Name)

	args, ok := tc.Arguments.AsValue()
	require.True(t, ok)
	assert.Equal(t, "San Francisco", args["city"])
}

func TestClient_Complete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	_, err := client.Complete(context.Background(), &ir.Request{Model: "claude-3-5-sonnet-20241022"})
	require.Error(t, err)

	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.UpstreamError, gwErr.Kind)
	assert.Equal(t, gatewayerr.UpstreamRateLimit, gwErr.Upstream)
	assert.Equal(t, 429, gwErr.HTTPStatus())
}

func TestValidate_DuplicateToolUseID(t *testing.T) {
	messages := []ir.UnifiedMessage{
		{
			Role: ir.RoleAssistant,
			ToolCalls: []ir.ToolCall{
				{ID: "call_1", Name: "a"},
				{ID: "call_1", Name: "b"},
			},
		},
	}
	err := Validate(messages)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.InvalidRequest, gwErr.Kind)
}

func TestValidate_MissingToolResult(t *testing.T) {
	messages := []ir.UnifiedMessage{
		{
			Role:      ir.RoleAssistant,
			ToolCalls: []ir.ToolCall{{ID: "call_1", Name: "a"}},
		},
		{Role: ir.RoleUser, Content: ir.TextContainer("never mind")},
	}
	err := Validate(messages)
	require.Error(t, err)
}

func TestValidate_SatisfiedToolResult(t *testing.T) {
	messages := []ir.UnifiedMessage{
		{
			Role:      ir.RoleAssistant,
			ToolCalls: []ir.ToolCall{{ID: "call_1", Name: "a"}},
		},
		{Role: ir.RoleTool, ToolCallID: "call_1", Content: ir.TextContainer("42")},
	}
	assert.NoError(t, Validate(messages))
}
