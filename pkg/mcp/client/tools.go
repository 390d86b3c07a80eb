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

	"github.com/teradata-labs/loomgate/pkg/mcp/protocol"
)

// ListTools fetches the downstream's current tool catalog and refreshes
// the local cache. The aggregator calls this on every catalog rebuild; the
// cache only exists so CallTool can validate arguments without re-listing
// per dispatch.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	resp, err := c.call(ctx, "tools/list", json.RawMessage(`{}`))
	if err != nil {
		return nil, err
	}

	var result protocol.ToolListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parsing tools/list result: %w", err)
	}

	c.toolsMu.Lock()
	c.tools = make(map[string]protocol.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		c.tools[tool.Name] = tool
	}
	c.toolsMu.Unlock()

	return result.Tools, nil
}

// CallTool dispatches one tool invocation. name is the downstream's own
// tool name — the aggregator strips its "<server>__" prefix before calling
// here. Arguments are validated against the tool's declared schema before
// the request leaves the gateway.
//
// A result with isError=true is returned as a result, not a Go error: the
// aggregator's contract is to hand downstream tool failures back to the
// caller verbatim, and only transport or protocol failures become errors.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	tool, err := c.getTool(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("tool %s not found: %w", name, err)
	}
	if err := protocol.ValidateToolArguments(tool, arguments); err != nil {
		return nil, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
	}

	params, err := json.Marshal(protocol.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parsing tools/call result: %w", err)
	}
	return &result, nil
}

// getTool resolves a tool definition from the cache, re-listing once on a
// miss — the downstream may have grown the tool since the last refresh.
func (c *Client) getTool(ctx context.Context, name string) (protocol.Tool, error) {
	c.toolsMu.RLock()
	tool, ok := c.tools[name]
	c.toolsMu.RUnlock()
	if ok {
		return tool, nil
	}

	if _, err := c.ListTools(ctx); err != nil {
		return protocol.Tool{}, err
	}

	c.toolsMu.RLock()
	tool, ok = c.tools[name]
	c.toolsMu.RUnlock()
	if !ok {
		return protocol.Tool{}, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}
