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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/llm"
)

const (
	// DefaultBaseURL is the Gemini API host; model-specific paths are
	// appended per call since the model id is part of the URL, not the body.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultTimeout is the default HTTP timeout for a non-streaming call.
	DefaultTimeout = 60 * time.Second
)

// Config holds the per-provider-entry configuration for a Gemini client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RateLimiterConfig llm.RateLimiterConfig
	Logger            *zap.Logger
}

// Client implements the gateway's provider-adapter contract for Google's
// GenerateContent API.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
	logger      *zap.Logger
	idCounter   atomic.Uint64
}

// NewClient creates a new Gemini client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(config.RateLimiterConfig)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Client{
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		rateLimiter: rateLimiter,
		logger:      config.Logger,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Name identifies this adapter in routing and error messages.
func (c *Client) Name() string { return "gemini" }

// mintToolUseID synthesizes a stable per-response tool_use id; Gemini's
// function_call parts carry no id of their own.
func (c *Client) mintToolUseID() string {
	return fmt.Sprintf("call_%d", c.idCounter.Add(1))
}

// Complete sends a buffered (non-streaming) generateContent request.
func (c *Client) Complete(ctx context.Context, req *ir.Request) (*ir.Response, error) {
	native := ToNative(req, c.logger)
	endpoint := c.endpointURL(ctx, "generateContent", req.Model, false)

	httpResp, err := c.doRequest(ctx, endpoint, native)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "reading gemini response body")
	}
	if err := statusToError(httpResp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var resp GenerateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "decoding gemini response")
	}
	out := FromNativeResponse(&resp, c.mintToolUseID)
	out.Model = req.Model
	return out, nil
}

// Stream sends a streamGenerateContent request. Gemini frames each chunk as
// a complete JSON object delivered over SSE "data:" lines — one full
// GenerateContentResponse per chunk rather than a partial delta.
func (c *Client) Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error {
	native := ToNative(req, c.logger)
	endpoint := c.endpointURL(ctx, "streamGenerateContent", req.Model, true)

	httpResp, err := c.doRequest(ctx, endpoint, native)
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
		chunk, parseErr := ParseEvent(data, c.mintToolUseID)
		if parseErr != nil {
			continue
		}
		chunk.Model = req.Model
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
		return gatewayerr.Wrap(gatewayerr.TransportError, err, "reading gemini stream")
	}
	return nil
}

// modelID strips a "<provider_key>/" routing prefix if present, since
// Gemini's own model identifiers never contain a slash.
func modelID(m string) string {
	if idx := strings.LastIndex(m, "/"); idx >= 0 {
		return m[idx+1:]
	}
	return m
}

// endpointURL builds the per-call Gemini URL. Gemini normally authenticates
// via a "key=" query parameter rather than a header; when a provider entry
// has forward_token=true and the inbound request carried an Authorization
// header (llm.ForwardedToken), the key parameter is omitted and doRequest
// attaches the forwarded credential as a Bearer header instead — Gemini's
// API accepts OAuth2 bearer tokens as an alternative to API keys.
func (c *Client) endpointURL(ctx context.Context, method, model string, streaming bool) string {
	base := fmt.Sprintf("%s/models/%s:%s", c.baseURL, modelID(model), method)
	if _, ok := llm.ForwardedToken(ctx); ok {
		if streaming {
			return base + "?alt=sse"
		}
		return base
	}
	if streaming {
		return fmt.Sprintf("%s?key=%s&alt=sse", base, c.apiKey)
	}
	return fmt.Sprintf("%s?key=%s", base, c.apiKey)
}

func (c *Client) doRequest(ctx context.Context, endpoint string, native *GenerateContentRequest) (*http.Response, error) {
	body, err := json.Marshal(native)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "marshaling gemini request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "building gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tok, ok := llm.ForwardedToken(ctx); ok {
		httpReq.Header.Set("Authorization", tok)
	}
	for k, v := range llm.ExtraHeaders(ctx) {
		httpReq.Header.Set(k, v)
	}

	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.httpClient.Do(httpReq)
		})
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "gemini request failed")
		}
		return result.(*http.Response), nil
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "gemini request failed")
	}
	return resp, nil
}

// statusToError classifies a non-200 Gemini response into the canonical
// upstream error kinds.
func statusToError(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	var wrapped struct {
		Error APIError `json:"error"`
	}
	_ = json.Unmarshal(body, &wrapped)
	msg := wrapped.Error.Message
	if msg == "" {
		msg = string(body)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return gatewayerr.Upstream(gatewayerr.UpstreamAuth, "gemini: %s", msg)
	case http.StatusNotFound:
		return gatewayerr.Upstream(gatewayerr.UpstreamModelMissing, "gemini: %s", msg)
	case http.StatusTooManyRequests:
		return gatewayerr.Upstream(gatewayerr.UpstreamRateLimit, "gemini: %s", msg)
	case http.StatusBadRequest:
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "gemini: %s", msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return gatewayerr.Upstream(gatewayerr.UpstreamUnavailable, "gemini: %s", msg)
	default:
		if status >= 500 {
			return gatewayerr.Upstream(gatewayerr.UpstreamInternal, "gemini: %s", msg)
		}
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "gemini: %s (status %d)", msg, status)
	}
}
