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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/llm"
)

const (
	// DefaultEndpoint is the default OpenAI chat-completions endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultTimeout is the default HTTP timeout for a non-streaming call.
	DefaultTimeout = 60 * time.Second
)

// Config holds the per-provider-entry configuration for an OpenAI-compatible
// client, including any OpenAI-compatible third party (Azure, OpenRouter,
// local vLLM) that speaks the same wire format at a different base URL.
type Config struct {
	APIKey            string
	Endpoint          string
	Timeout           time.Duration
	RateLimiterConfig llm.RateLimiterConfig
}

// Client implements the gateway's provider-adapter contract for OpenAI's
// chat-completions API.
type Client struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
}

// NewClient creates a new OpenAI chat-completions client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(config.RateLimiterConfig)
	}

	return &Client{
		apiKey:      config.APIKey,
		endpoint:    config.Endpoint,
		rateLimiter: rateLimiter,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Name identifies this adapter in routing and error messages.
func (c *Client) Name() string { return "openai" }

// Complete sends a buffered (non-streaming) chat-completion request.
func (c *Client) Complete(ctx context.Context, req *ir.Request) (*ir.Response, error) {
	native := ToNative(req)
	native.Stream = false

	httpResp, err := c.doRequest(ctx, native)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "reading openai response body")
	}
	if err := statusToError(httpResp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "decoding openai response")
	}
	return FromNativeResponse(&resp), nil
}

// Stream sends a streaming chat-completion request, invoking onChunk for
// every IR chunk parsed from the SSE body. It returns once the upstream
// closes the stream or sends the [DONE] sentinel.
func (c *Client) Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error {
	native := ToNative(req)
	native.Stream = true

	httpResp, err := c.doRequest(ctx, native)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return statusToError(httpResp.StatusCode, body)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		chunk, done, parseErr := ParseEvent(data)
		if parseErr != nil {
			continue
		}
		if done {
			return nil
		}
		if err := onChunk(chunk); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return gatewayerr.Wrap(gatewayerr.TransportError, err, "reading openai stream")
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, native *ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(native)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "marshaling openai request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "building openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tok, ok := llm.ForwardedToken(ctx); ok {
		httpReq.Header.Set("Authorization", tok)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range llm.ExtraHeaders(ctx) {
		httpReq.Header.Set(k, v)
	}

	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.httpClient.Do(httpReq)
		})
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "openai request failed")
		}
		return result.(*http.Response), nil
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "openai request failed")
	}
	return resp, nil
}

// statusToError classifies a non-200 OpenAI response into the canonical
// upstream error kinds.
func statusToError(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	var wrapped struct {
		Error OpenAIError `json:"error"`
	}
	_ = json.Unmarshal(body, &wrapped)
	msg := wrapped.Error.Message
	if msg == "" {
		msg = string(body)
	}

	switch status {
	case http.StatusUnauthorized:
		return gatewayerr.Upstream(gatewayerr.UpstreamAuth, "openai: %s", msg)
	case http.StatusNotFound:
		return gatewayerr.Upstream(gatewayerr.UpstreamModelMissing, "openai: %s", msg)
	case http.StatusTooManyRequests:
		return gatewayerr.Upstream(gatewayerr.UpstreamRateLimit, "openai: %s", msg)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return gatewayerr.Upstream(gatewayerr.UpstreamQuota, "openai: %s", msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "openai: %s", msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return gatewayerr.Upstream(gatewayerr.UpstreamUnavailable, "openai: %s", msg)
	default:
		if status >= 500 {
			return gatewayerr.Upstream(gatewayerr.UpstreamInternal, "openai: %s", msg)
		}
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "openai: %s (status %d)", msg, status)
	}
}
