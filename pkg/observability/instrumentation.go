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
package observability

// Standard span names for consistency across the gateway. Use these
// constants instead of hardcoding strings.
const (
	// Gateway request spans — one per client-facing dispatch.
	SpanGatewayLLMRequest = "gateway.llm.request"
	SpanGatewayMCPExecute = "gateway.mcp.execute"

	// LLM provider-adapter spans.
	SpanLLMCompletion = "llm.completion"
	SpanLLMStreaming  = "llm.streaming"

	// MCP downstream client spans — the tool-only surface the aggregator
	// drives, plus the health-check ping.
	SpanMCPClientInitialize = "mcp.client.initialize"
	SpanMCPToolsList        = "mcp.tools.list"
	SpanMCPToolsCall        = "mcp.tools.call"
	SpanMCPPing             = "mcp.ping"
)

// Standard metric names for consistency.
const (
	// LLM metrics
	MetricLLMCalls       = "llm.calls.total"
	MetricLLMLatency     = "llm.latency"
	MetricLLMTokensInput = "llm.tokens.input" // #nosec G101 -- not a credential, just metric name
	MetricLLMErrors      = "llm.errors.total"

	// MCP metrics
	MetricMCPCalls    = "mcp.calls.total"
	MetricMCPDuration = "mcp.duration"
	MetricMCPErrors   = "mcp.errors.total"
)

// Standard attribute names for consistency. Use these constants for span
// and event attributes.
const (
	// Gateway request attributes
	AttrClientID  = "gateway.client_id"
	AttrGroupID   = "gateway.group_id"
	AttrModel     = "gateway.model"
	AttrProvider  = "gateway.provider"
	AttrStreaming = "gateway.streaming"

	// LLM attributes
	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"

	// MCP attributes
	AttrMCPServerName      = "mcp.server.name"
	AttrMCPOperation       = "mcp.operation"
	AttrMCPToolName        = "mcp.tool.name"
	AttrMCPProtocolVersion = "mcp.protocol.version"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)
