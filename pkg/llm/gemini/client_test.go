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
package gemini

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
	assert.Equal(t, "gemini", client.Name())
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestModelID_StripsRoutingPrefix(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", modelID("gemini/gemini-2.5-flash"))
	assert.Equal(t, "gemini-2.5-flash", modelID("gemini-2.5-flash"))
}

func TestClient_Complete_SimpleText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := GenerateContentResponse{
			Candidates: []Candidate{
				{Index: 0, FinishReason: "STOP", Content: Content{Role: "model", Parts: []Part{{Text: "hi there"}}}},
			},
			UsageMetadata: UsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 6, TotalTokenCount: 10},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &ir.Request{
		Model: "gemini-2.5-flash",
		Messages: []ir.UnifiedMessage{
			{Role: ir.RoleUser, Content: ir.TextContainer("hello")},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content.PlainText())
	assert.Equal(t, ir.FinishStop, resp.Choices[0].FinishReason.Kind)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestClient_Complete_WithToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := GenerateContentResponse{
			Candidates: []Candidate{
				{
					Index:        0,
					FinishReason: "STOP",
					Content: Content{
						Role: "model",
						Parts: []Part{
							{FunctionCall: &FunctionCall{Name: "get_weather", Args: map[string]interface{}{"city": "Austin"}}},
						},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &ir.Request{
		Model: "gemini-2.5-flash",
		Messages: []ir.UnifiedMessage{
			{Role: ir.RoleUser, Content: ir.TextContainer("weather in austin?")},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	tc := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "get_weather", tc.Name)
	assert.NotEmpty(t, tc.ID)
	args, ok := tc.Arguments.AsValue()
	require.True(t, ok)
	assert.Equal(t, "Austin", args["city"])
}

func TestClient_Complete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), &ir.Request{Model: "gemini-2.5-flash"})
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.UpstreamRateLimit, gwErr.Upstream)
}
