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

// Package client is the gateway's connection to one downstream MCP server.
// It is deliberately a tool-only client: the aggregator fronts downstreams
// exclusively through tools/list and tools/call, so prompts, resources, and
// server-initiated sampling have no surface here. A downstream that asks
// the gateway for anything gets method_not_found back.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/mcp/protocol"
	"github.com/teradata-labs/loomgate/pkg/mcp/transport"
)

// DefaultRequestTimeout bounds a single downstream call when the caller's
// context carries no tighter deadline.
const DefaultRequestTimeout = 30 * time.Second

// Client is one connection to a downstream MCP server, safe for concurrent
// use by every request handler the aggregator fans in. One receive loop per
// connection routes responses back to their callers by request id.
type Client struct {
	transport transport.Transport
	logger    *zap.Logger
	timeout   time.Duration

	initialized bool
	serverInfo  protocol.Implementation
	serverCaps  protocol.ServerCapabilities

	nextID    int64
	pending   map[string]chan *protocol.Response
	pendingMu sync.Mutex

	// tools caches the downstream's last tools/list answer, keyed by the
	// downstream's own (unprefixed) tool name, so tools/call can validate
	// arguments without re-listing on every dispatch.
	tools   map[string]protocol.Tool
	toolsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Config configures a downstream connection.
type Config struct {
	Transport      transport.Transport
	Logger         *zap.Logger
	RequestTimeout time.Duration // defaults to DefaultRequestTimeout
}

// NewClient wires a Client over an already-constructed transport and
// starts its receive loop. Initialize must complete before any other call.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport: config.Transport,
		logger:    config.Logger,
		timeout:   config.RequestTimeout,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]chan *protocol.Response),
		tools:     make(map[string]protocol.Tool),
	}

	c.wg.Add(1)
	go c.receiveLoop()
	return c
}

// Initialize runs the MCP handshake: initialize, then the initialized
// notification. A protocol-version mismatch is logged but tolerated — a
// downstream speaking a close revision still serves tools, and excluding
// it outright would violate the gateway's keep-serving posture.
func (c *Client) Initialize(ctx context.Context, clientInfo protocol.Implementation) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("already initialized")
	}
	c.mu.Unlock()

	params, err := json.Marshal(protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    protocol.ClientCapabilities{},
		ClientInfo:      clientInfo,
	})
	if err != nil {
		return err
	}

	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parsing initialize result: %w", err)
	}
	if result.ProtocolVersion != protocol.ProtocolVersion {
		c.logger.Warn("downstream speaks a different MCP revision, continuing",
			zap.String("ours", protocol.ProtocolVersion),
			zap.String("theirs", result.ProtocolVersion))
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.mu.Unlock()

	c.logger.Info("downstream connected",
		zap.String("server", result.ServerInfo.Name),
		zap.String("version", result.ServerInfo.Version),
		zap.Bool("tools", result.Capabilities.Tools != nil),
	)
	if result.Capabilities.Tools == nil {
		c.logger.Warn("downstream declares no tools capability; it will contribute zero tools")
	}

	note, err := json.Marshal(protocol.NewRequest(nil, "notifications/initialized", nil))
	if err != nil {
		return fmt.Errorf("encoding initialized notification: %w", err)
	}
	if err := c.transport.Send(ctx, note); err != nil {
		return fmt.Errorf("sending initialized notification: %w", err)
	}
	return nil
}

// Ping checks connection health; the manager's IsHealthy and HealthCheck
// report its outcome.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", json.RawMessage(`{}`))
	return err
}

// ServerInfo returns the downstream's self-reported identity.
func (c *Client) ServerInfo() protocol.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// IsInitialized reports whether the handshake has completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Close tears the connection down. In-flight calls fail with a transport
// error; callers see that as the downstream becoming unavailable, never as
// a tool result.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("closing transport", zap.Error(err))
	}
	c.wg.Wait()

	c.logger.Info("downstream connection closed")
	return nil
}

// call sends one request and blocks for its response. The pending-call
// slot is registered before the send so a fast downstream can never answer
// into a gap.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (*protocol.Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := protocol.NewRequest(c.nextRequestID(), method, params)
	if err := protocol.ValidateRequest(req); err != nil {
		return nil, err
	}

	idStr := req.ID.String()
	respCh := make(chan *protocol.Response, 1)

	c.pendingMu.Lock()
	c.pending[idStr] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, idStr)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := c.transport.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	}
}

// receiveLoop drains the transport for the connection's lifetime, routing
// responses to pending calls and refusing any request the downstream sends
// the other way.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		data, err := c.transport.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Warn("receive failed", zap.Error(err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil && (len(resp.Result) > 0 || resp.Error != nil) {
			c.routeResponse(&resp)
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err == nil && req.Method != "" {
			c.refuseRequest(&req)
			continue
		}

		c.logger.Warn("unrecognized frame from downstream", zap.ByteString("data", data))
	}
}

func (c *Client) routeResponse(resp *protocol.Response) {
	idStr := resp.ID.String()

	c.pendingMu.Lock()
	respCh, ok := c.pending[idStr]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Warn("response for unknown request", zap.String("id", idStr))
		return
	}

	select {
	case respCh <- resp:
	default:
	}
}

// refuseRequest answers a downstream-initiated request (sampling, roots,
// anything) with method_not_found. Notifications are dropped silently.
func (c *Client) refuseRequest(req *protocol.Request) {
	if req.IsNotification() {
		c.logger.Debug("ignoring downstream notification", zap.String("method", req.Method))
		return
	}

	resp := protocol.NewErrorResponse(req.ID,
		protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("method not supported by gateway: %s", req.Method), nil))
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, DefaultRequestTimeout)
	defer cancel()
	if err := c.transport.Send(ctx, data); err != nil {
		c.logger.Warn("failed to refuse downstream request", zap.String("method", req.Method), zap.Error(err))
	}
}

func (c *Client) nextRequestID() *protocol.RequestID {
	return protocol.NewNumericRequestID(atomic.AddInt64(&c.nextID, 1))
}
