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
	// DefaultEndpoint is the default Anthropic Messages API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultAPIVersion is the anthropic-version header value this adapter speaks.
	DefaultAPIVersion = "2023-06-01"
	// DefaultTimeout is the default HTTP timeout for a non-streaming call.
	DefaultTimeout = 60 * time.Second
)

// Config holds the per-provider-entry configuration for an Anthropic client.
type Config struct {
	APIKey            string
	Endpoint          string
	APIVersion        string
	Timeout           time.Duration
	RateLimiterConfig llm.RateLimiterConfig
}

// Client implements the gateway's provider-adapter contract for Anthropic's
// Messages API.
type Client struct {
	apiKey      string
	endpoint    string
	apiVersion  string
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
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
		apiVersion:  config.APIVersion,
		rateLimiter: rateLimiter,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Name identifies this adapter in routing and error messages.
func (c *Client) Name() string { return "anthropic" }

// Complete sends a buffered (non-streaming) Messages API request.
func (c *Client) Complete(ctx context.Context, req *ir.Request) (*ir.Response, error) {
	native, err := ToNative(req)
	if err != nil {
		return nil, err
	}
	native.Stream = false

	httpResp, err := c.doRequest(ctx, native)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "reading anthropic response body")
	}
	if err := statusToError(httpResp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "decoding anthropic response")
	}
	return FromNativeResponse(&resp), nil
}

// Stream sends a streaming Messages API request, invoking onChunk for every
// IR chunk produced by the typed-event state machine.
func (c *Client) Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error {
	native, err := ToNative(req)
	if err != nil {
		return err
	}
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

	state := NewStreamState()
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			chunk, feedErr := state.Feed(eventType, data)
			if feedErr != nil {
				return feedErr
			}
			if chunk != nil {
				if err := onChunk(chunk); err != nil {
					return err
				}
			}
		case line == "":
			eventType = ""
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return gatewayerr.Wrap(gatewayerr.TransportError, err, "reading anthropic stream")
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, native *MessagesRequest) (*http.Response, error) {
	body, err := json.Marshal(native)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.InvalidRequest, err, "marshaling anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "building anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tok, ok := llm.ForwardedToken(ctx); ok {
		httpReq.Header.Set("x-api-key", strings.TrimPrefix(tok, "Bearer "))
	} else {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}
	httpReq.Header.Set("anthropic-version", c.apiVersion)
	for k, v := range llm.ExtraHeaders(ctx) {
		httpReq.Header.Set(k, v)
	}

	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.httpClient.Do(httpReq)
		})
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "anthropic request failed")
		}
		return result.(*http.Response), nil
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "anthropic request failed")
	}
	return resp, nil
}

// statusToError classifies a non-200 Anthropic response into the canonical
// upstream error kinds.
func statusToError(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	var wrapped struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &wrapped)
	msg := wrapped.Error.Message
	if msg == "" {
		msg = string(body)
	}

	switch status {
	case http.StatusUnauthorized:
		return gatewayerr.Upstream(gatewayerr.UpstreamAuth, "anthropic: %s", msg)
	case http.StatusNotFound:
		return gatewayerr.Upstream(gatewayerr.UpstreamModelMissing, "anthropic: %s", msg)
	case http.StatusTooManyRequests:
		return gatewayerr.Upstream(gatewayerr.UpstreamRateLimit, "anthropic: %s", msg)
	case http.StatusForbidden:
		return gatewayerr.Upstream(gatewayerr.UpstreamQuota, "anthropic: %s", msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "anthropic: %s", msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooEarly:
		return gatewayerr.Upstream(gatewayerr.UpstreamUnavailable, "anthropic: %s", msg)
	case http.StatusRequestEntityTooLarge:
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "anthropic: %s", msg)
	default:
		if status >= 500 {
			return gatewayerr.Upstream(gatewayerr.UpstreamInternal, "anthropic: %s", msg)
		}
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "anthropic: %s (status %d)", msg, status)
	}
}
