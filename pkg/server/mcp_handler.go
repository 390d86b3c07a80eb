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

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/mcp/aggregator"
	"github.com/teradata-labs/loomgate/pkg/mcp/protocol"
	"github.com/teradata-labs/loomgate/pkg/mcp/transport"
	"github.com/teradata-labs/loomgate/pkg/observability"
)

// mcpHandler builds the streamable-HTTP MCP surface: the transport server
// owns framing, Mcp-Session-Id management, and idle-session cleanup; the
// message handler below owns dispatch over the aggregator's search/execute
// tools.
func (g *Gateway) mcpHandler() http.Handler {
	srv, err := transport.NewStreamableHTTPServer(transport.StreamableHTTPServerConfig{
		Handler:    g.handleMCPMessage,
		Logger:     g.Logger,
		SessionTTL: transport.DefaultSessionTTL,
	})
	if err != nil {
		// Only reachable with a nil handler, which this constructor never
		// passes; fail closed anyway.
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "mcp endpoint unavailable", http.StatusInternalServerError)
		})
	}
	return srv
}

// handleMCPMessage processes one MCP JSON-RPC message arriving over HTTP,
// deriving the caller's group and authorization from the request.
func (g *Gateway) handleMCPMessage(r *http.Request, msg []byte) ([]byte, error) {
	var req protocol.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return json.Marshal(protocol.NewErrorResponse(nil, protocol.NewError(protocol.ParseError, "invalid JSON-RPC request", nil)))
	}

	ident, err := g.Identity.Extract(r)
	if err != nil {
		return json.Marshal(protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, err.Error(), nil)))
	}

	return g.serveMCPRequest(r.Context(), req, ident.GroupID, r.Header.Get("Authorization"))
}

// ServeMCPMessage processes one MCP JSON-RPC message with an
// already-established caller context — the stdio surface, where group
// selection happens at process launch rather than per request.
// Notifications (no id) return a nil response body per JSON-RPC 2.0.
func (g *Gateway) ServeMCPMessage(ctx context.Context, group, authorization string, msg []byte) ([]byte, error) {
	var req protocol.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return json.Marshal(protocol.NewErrorResponse(nil, protocol.NewError(protocol.ParseError, "invalid JSON-RPC request", nil)))
	}
	return g.serveMCPRequest(ctx, req, group, authorization)
}

func (g *Gateway) serveMCPRequest(ctx context.Context, req protocol.Request, group, authorization string) ([]byte, error) {
	if g.Aggregator == nil {
		return json.Marshal(protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, "no MCP servers configured", nil)))
	}

	result, rpcErr := g.dispatchMCP(ctx, req, group, authorization)
	if req.IsNotification() {
		return nil, nil
	}
	if rpcErr != nil {
		g.Logger.Debug("mcp error", zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
		return json.Marshal(protocol.NewErrorResponse(req.ID, rpcErr))
	}
	return json.Marshal(protocol.NewResultResponse(req.ID, result))
}

func (g *Gateway) dispatchMCP(ctx context.Context, req protocol.Request, group, authorization string) (interface{}, *protocol.Error) {
	switch req.Method {
	case "initialize":
		return protocol.InitializeResult{
			ProtocolVersion: protocol.ProtocolVersion,
			Capabilities:    protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}},
			ServerInfo:      protocol.Implementation{Name: "loomgate", Version: "0.1.0"},
		}, nil
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return protocol.ToolListResult{Tools: aggregator.Tools()}, nil
	case "tools/call":
		return g.dispatchToolCall(ctx, req.Params, group, authorization)
	default:
		return nil, protocol.NewError(protocol.MethodNotFound, "method not found", nil)
	}
}

func (g *Gateway) dispatchToolCall(ctx context.Context, params json.RawMessage, group, authorization string) (interface{}, *protocol.Error) {
	var call protocol.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, protocol.NewError(protocol.InvalidParams, "invalid tools/call params", nil)
	}

	switch call.Name {
	case "search":
		keywords, _ := call.Arguments["keywords"].([]interface{})
		words := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if s, ok := k.(string); ok {
				words = append(words, s)
			}
		}
		return g.Aggregator.Search(group, words), nil
	case "execute":
		name, _ := call.Arguments["name"].(string)
		args, _ := call.Arguments["arguments"].(map[string]interface{})
		if name == "" {
			return nil, protocol.NewError(protocol.InvalidParams, "execute requires a name", nil)
		}

		ctx, span := g.Tracer.StartSpan(ctx, observability.SpanGatewayMCPExecute,
			observability.WithAttribute(observability.AttrGroupID, group),
			observability.WithAttribute(observability.AttrMCPToolName, name),
		)
		defer g.Tracer.EndSpan(span)

		result, err := g.Aggregator.Execute(ctx, group, name, args, authorization)
		if err != nil {
			span.RecordError(err)
			g.Tracer.RecordMetric(observability.MetricMCPErrors, 1, map[string]string{"tool": name})
			return nil, mcpErrorFromGateway(err)
		}
		g.Tracer.RecordMetric(observability.MetricMCPCalls, 1, map[string]string{"tool": name})
		return result, nil
	default:
		// Any other name is indistinguishable from a genuinely absent
		// method, same as an RBAC-invisible tool.
		return nil, protocol.NewError(protocol.MethodNotFound, "tool not found", nil)
	}
}

// mcpErrorFromGateway shapes a gatewayerr.Error as a JSON-RPC error using
// its MCPCode mapping.
func mcpErrorFromGateway(err error) *protocol.Error {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		return protocol.NewError(protocol.InternalError, err.Error(), nil)
	}
	return protocol.NewError(gwErr.MCPCode(), gwErr.Message, nil)
}
