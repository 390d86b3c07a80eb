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
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teradata-labs/loomgate/pkg/mcp/protocol"
	"github.com/teradata-labs/loomgate/pkg/observability"
)

// InstrumentedClient wraps a Client so every downstream exchange emits a
// span and call/error/duration metrics tagged with the server name. The
// manager always wraps connections in one of these; with the default no-op
// tracer the overhead is a couple of map writes per call.
type InstrumentedClient struct {
	client     *Client
	tracer     observability.Tracer
	serverName string
}

// NewInstrumentedClient wraps client, attributing its spans to serverName.
func NewInstrumentedClient(client *Client, tracer observability.Tracer, serverName string) *InstrumentedClient {
	return &InstrumentedClient{client: client, tracer: tracer, serverName: serverName}
}

// instrument runs fn under a span named spanName, recording duration and
// success/error metrics for the operation. extra labels (tool name, etc.)
// ride on every metric emitted.
func (ic *InstrumentedClient) instrument(ctx context.Context, spanName, op string, extra map[string]string, fn func(ctx context.Context, span *observability.Span) error) error {
	ctx, span := ic.tracer.StartSpan(ctx, spanName)
	defer ic.tracer.EndSpan(span)

	span.SetAttribute(observability.AttrMCPServerName, ic.serverName)
	span.SetAttribute(observability.AttrMCPOperation, op)
	for k, v := range extra {
		span.SetAttribute(k, v)
	}

	labels := map[string]string{
		observability.AttrMCPServerName: ic.serverName,
		observability.AttrMCPOperation:  op,
	}
	for k, v := range extra {
		labels[k] = v
	}

	start := time.Now()
	err := fn(ctx, span)
	duration := time.Since(start)

	ic.tracer.RecordMetric(observability.MetricMCPDuration, float64(duration.Milliseconds()), labels)

	if err != nil {
		span.Status = observability.Status{Code: observability.StatusError, Message: err.Error()}
		span.SetAttribute(observability.AttrErrorType, fmt.Sprintf("%T", err))
		span.SetAttribute(observability.AttrErrorMessage, err.Error())
		ic.tracer.RecordMetric(observability.MetricMCPErrors, 1, labels)
		return err
	}

	span.Status = observability.Status{Code: observability.StatusOK}
	ic.tracer.RecordMetric(observability.MetricMCPCalls, 1, labels)
	return nil
}

// Initialize runs the handshake under an mcp.client.initialize span.
func (ic *InstrumentedClient) Initialize(ctx context.Context, clientInfo protocol.Implementation) error {
	return ic.instrument(ctx, observability.SpanMCPClientInitialize, "initialize", nil,
		func(ctx context.Context, span *observability.Span) error {
			span.SetAttribute(observability.AttrMCPProtocolVersion, protocol.ProtocolVersion)
			if err := ic.client.Initialize(ctx, clientInfo); err != nil {
				return err
			}
			info := ic.client.ServerInfo()
			span.SetAttribute("mcp.server.name", info.Name)
			span.SetAttribute("mcp.server.version", info.Version)
			return nil
		})
}

// ListTools lists the downstream's tools under an mcp.tools.list span.
func (ic *InstrumentedClient) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var tools []protocol.Tool
	err := ic.instrument(ctx, observability.SpanMCPToolsList, "tools.list", nil,
		func(ctx context.Context, span *observability.Span) error {
			var err error
			tools, err = ic.client.ListTools(ctx)
			if err == nil {
				span.SetAttribute("mcp.tools.count", len(tools))
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool dispatches one tool invocation under an mcp.tools.call span. A
// result with isError=true is still a successful dispatch at this layer —
// it counts as a call, with a tool-error marker on the span — because the
// aggregator forwards such results verbatim.
func (ic *InstrumentedClient) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	var result *protocol.CallToolResult
	err := ic.instrument(ctx, observability.SpanMCPToolsCall, "tools.call",
		map[string]string{observability.AttrMCPToolName: name},
		func(ctx context.Context, span *observability.Span) error {
			if len(arguments) > 0 {
				if argsJSON, err := json.Marshal(arguments); err == nil && len(argsJSON) < 1000 {
					span.SetAttribute("mcp.tool.args", string(argsJSON))
				} else {
					span.SetAttribute("mcp.tool.args.count", len(arguments))
				}
			}
			var err error
			result, err = ic.client.CallTool(ctx, name, arguments)
			if err == nil && result.IsError {
				span.SetAttribute("mcp.tool.error", true)
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks connection health under an mcp.ping span.
func (ic *InstrumentedClient) Ping(ctx context.Context) error {
	return ic.instrument(ctx, observability.SpanMCPPing, "ping", nil,
		func(ctx context.Context, _ *observability.Span) error {
			return ic.client.Ping(ctx)
		})
}

// IsInitialized reports whether the underlying handshake has completed.
func (ic *InstrumentedClient) IsInitialized() bool { return ic.client.IsInitialized() }

// Close tears down the underlying connection.
func (ic *InstrumentedClient) Close() error { return ic.client.Close() }
