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
package protocol

// ProtocolVersion is the MCP protocol revision the gateway speaks, on both
// sides: as a client to downstream tool servers and as a server on its own
// /mcp and stdio surfaces.
const ProtocolVersion = "2024-11-05"

// InitializeParams is the client half of the MCP handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server half of the MCP handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// Implementation names one side of an MCP connection.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is what the gateway declares to downstreams. The
// gateway is a pure tool caller — it offers no roots and no sampling — so
// this marshals as an empty object.
type ClientCapabilities struct{}

// ServerCapabilities is what a connected server declares. The gateway only
// dispatches tools, but it still decodes the other capability markers so a
// downstream's handshake can be logged faithfully.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Logging   *LoggingCapability   `json:"logging,omitempty"`
}

// Capability markers. Presence indicates support.
type ToolsCapability struct{}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type LoggingCapability struct{}

// ToolAnnotations carries a downstream's behavioral hints for a tool.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// Tool is one tool definition as listed by a downstream. The aggregator
// prefixes Name with "<server>__" before exposing it; InputSchema,
// Annotations, and Meta pass through verbatim so byte-sensitive schemas
// survive aggregation.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Annotations *ToolAnnotations       `json:"annotations,omitempty"`
	Meta        map[string]interface{} `json:"_meta,omitempty"`
}

// ToolListResult is the tools/list response body.
type ToolListResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the tools/call request body.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the tools/call response body. IsError marks a
// tool-level failure; the aggregator forwards such results verbatim rather
// than converting them into JSON-RPC errors, so a caller sees exactly what
// the downstream produced.
type CallToolResult struct {
	Content           []Content              `json:"content"`
	IsError           bool                   `json:"isError,omitempty"`
	StructuredContent map[string]interface{} `json:"structuredContent,omitempty"`
}

// Content is one item of a tool result: text, an image, or a resource
// reference.
type Content struct {
	Type     string                 `json:"type"` // "text", "image", "resource"
	Text     string                 `json:"text,omitempty"`
	Data     string                 `json:"data,omitempty"`     // base64, for images
	MimeType string                 `json:"mimeType,omitempty"` // for images/resources
	Resource *ResourceRef           `json:"resource,omitempty"`
	Meta     map[string]interface{} `json:"_meta,omitempty"`
}

// ResourceRef points at a downstream-owned resource inside a tool result.
type ResourceRef struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
}
