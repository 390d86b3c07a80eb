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
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
)

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o",
			Choices: []ChatCompletionChoice{
				{Index: 0, FinishReason: "stop", Message: ChatMessage{Role: "assistant", Content: "hello"}},
			},
			Usage: ChatCompletionUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	resp, err := client.Complete(context.Background(), &ir.Request{Model: "gpt-4o", Messages: []ir.UnifiedMessage{
		{Role: ir.RoleUser, Content: ir.TextContainer("hi")},
	}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content.PlainText())
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestClient_Complete_NotFoundModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "no such model"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	_, err := client.Complete(context.Background(), &ir.Request{Model: "does-not-exist"})
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.UpstreamModelMissing, gwErr.Upstream)
}

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
			flusher.Flush()
		}
		fmt.Fprintf(w, "data: %s\n\n", Done)
		flusher.Flush()
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	var text string
	var sawFinish bool
	err := client.Stream(context.Background(), &ir.Request{Model: "gpt-4o", Stream: true}, func(c *ir.Chunk) error {
		text += c.Delta.Text
		if c.FinishReason != nil {
			sawFinish = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.True(t, sawFinish)
}
