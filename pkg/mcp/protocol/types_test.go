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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_DecodesDownstreamListing(t *testing.T) {
	// The shape a real downstream answers tools/list with, including the
	// _meta passthrough the aggregator must preserve.
	wire := `{
		"name": "execute_sql",
		"description": "Run a SQL statement",
		"inputSchema": {
			"type": "object",
			"properties": {"sql": {"type": "string"}},
			"required": ["sql"]
		},
		"annotations": {"readOnlyHint": true},
		"_meta": {"vendor": "acme"}
	}`

	var tool Tool
	require.NoError(t, json.Unmarshal([]byte(wire), &tool))
	assert.Equal(t, "execute_sql", tool.Name)
	assert.Equal(t, []interface{}{"sql"}, tool.InputSchema["required"])
	require.NotNil(t, tool.Annotations)
	require.NotNil(t, tool.Annotations.ReadOnlyHint)
	assert.True(t, *tool.Annotations.ReadOnlyHint)
	assert.Equal(t, "acme", tool.Meta["vendor"])

	// Round-tripping must not drop _meta.
	out, err := json.Marshal(tool)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"_meta"`)
}

func TestClientCapabilities_MarshalsAsEmptyObject(t *testing.T) {
	// The gateway offers no roots and no sampling; the handshake must say
	// so with an empty object, not null.
	data, err := json.Marshal(InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      Implementation{Name: "loomgate", Version: "0.1.0"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"capabilities":{}`)
}

func TestInitializeResult_DecodesCapabilityMarkers(t *testing.T) {
	wire := `{
		"protocolVersion": "2024-11-05",
		"capabilities": {
			"tools": {},
			"resources": {"subscribe": true},
			"prompts": {"listChanged": true}
		},
		"serverInfo": {"name": "fs-server", "version": "1.2.3"}
	}`

	var result InitializeResult
	require.NoError(t, json.Unmarshal([]byte(wire), &result))
	assert.NotNil(t, result.Capabilities.Tools)
	require.NotNil(t, result.Capabilities.Resources)
	assert.True(t, result.Capabilities.Resources.Subscribe)
	assert.Equal(t, "fs-server", result.ServerInfo.Name)
}

func TestCallToolResult_ErrorResultsStayResults(t *testing.T) {
	// isError rides inside the result body; decoding must surface it
	// without turning it into anything else — the aggregator forwards such
	// results verbatim.
	wire := `{"content":[{"type":"text","text":"query failed: timeout"}],"isError":true}`

	var result CallToolResult
	require.NoError(t, json.Unmarshal([]byte(wire), &result))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "query failed: timeout", result.Content[0].Text)
}

func TestContent_ResourceReference(t *testing.T) {
	wire := `{"type":"resource","resource":{"uri":"file:///tmp/report.csv","mimeType":"text/csv"}}`

	var content Content
	require.NoError(t, json.Unmarshal([]byte(wire), &content))
	assert.Equal(t, "resource", content.Type)
	require.NotNil(t, content.Resource)
	assert.Equal(t, "file:///tmp/report.csv", content.Resource.URI)
}

func TestProtocolVersionConstant(t *testing.T) {
	assert.Equal(t, "2024-11-05", ProtocolVersion)
}
