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

// Package aggregator presents every downstream MCP server's tools as a
// single two-tool surface — search and execute — to the gateway's own
// clients. It owns RBAC visibility, prefixed naming, and a per-group
// catalog cache. Each downstream is listed once per refresh, with no
// forwarded bearer, and that one listing serves every group; groups differ
// only by RBAC filtering, not by a per-group downstream listing.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/mcp/manager"
	"github.com/teradata-labs/loomgate/pkg/mcp/protocol"
	"github.com/teradata-labs/loomgate/pkg/mcp/transport"
	"github.com/teradata-labs/loomgate/pkg/tools/registry"
)

// toolEntry is one downstream tool as known to the aggregator: its
// prefixed identity plus the access rules that govern it.
type toolEntry struct {
	serverName   string
	toolName     string
	prefixedName string
	description  string
	inputSchema  map[string]interface{}
	serverAllow  []string
	serverDeny   []string
	toolAllow    []string
	toolDeny     []string
}

// SearchResult is one hit returned by Search, in the shape the execute
// surface documents to clients.
type SearchResult struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Score       float64                `json:"score"`
}

// groupCatalog is the materialized view of the aggregator's tool set for
// one group: the tools it may see, and a search index built only from
// them.
type groupCatalog struct {
	entries map[string]toolEntry // prefixedName -> entry, visible-to-group subset only
	index   *registry.Index
}

// Aggregator fans a set of downstream MCP servers out into a single
// search/execute surface, enforcing per-group RBAC visibility.
type Aggregator struct {
	mgr    *manager.Manager
	cfg    gwconfig.MCPConfig
	logger *zap.Logger

	mu       sync.RWMutex
	all      map[string]toolEntry    // prefixedName -> entry, every tool the gateway knows about
	catalogs map[string]*groupCatalog // group -> catalog, built lazily on first use
}

// New returns an Aggregator bound to mgr (already started) and cfg (the
// RBAC and auth configuration for mgr's servers).
func New(mgr *manager.Manager, cfg gwconfig.MCPConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		mgr:      mgr,
		cfg:      cfg,
		logger:   logger,
		all:      make(map[string]toolEntry),
		catalogs: make(map[string]*groupCatalog),
	}
}

// RefreshCatalog queries tools/list on every server the manager reports
// as active and rebuilds the aggregator's global tool table. Per-group
// catalogs are invalidated and rebuilt lazily on next use. A server that
// fails to list is skipped — it contributes zero tools, matching the
// manager's own startup-resilience contract: one bad downstream never
// takes down the others.
func (a *Aggregator) RefreshCatalog(ctx context.Context) error {
	all := make(map[string]toolEntry)

	for _, serverName := range a.mgr.ServerNames() {
		serverCfg, ok := a.cfg.Servers[serverName]
		if !ok {
			serverCfg = gwconfig.MCPServerConfig{}
		}

		cl, err := a.mgr.GetClient(serverName)
		if err != nil {
			a.logger.Warn("aggregator: server has no client", zap.String("server", serverName), zap.Error(err))
			continue
		}

		tools, err := cl.ListTools(ctx)
		if err != nil {
			a.logger.Warn("aggregator: tools/list failed, excluding server from catalog",
				zap.String("server", serverName), zap.Error(err))
			continue
		}

		var filter manager.ToolFilter
		if mgrCfg, err := a.mgr.GetServerConfig(serverName); err == nil {
			filter = mgrCfg.ToolFilter
		}

		for _, t := range tools {
			if !filter.ShouldRegisterTool(t.Name) {
				continue
			}
			prefixed := serverName + "__" + t.Name
			entry := toolEntry{
				serverName:   serverName,
				toolName:     t.Name,
				prefixedName: prefixed,
				description:  t.Description,
				inputSchema:  t.InputSchema,
				serverAllow:  serverCfg.Allow,
				serverDeny:   serverCfg.Deny,
			}
			if tc, ok := serverCfg.Tools[t.Name]; ok {
				entry.toolAllow = tc.Allow
				entry.toolDeny = tc.Deny
			}
			all[prefixed] = entry
		}
	}

	a.mu.Lock()
	a.all = all
	a.catalogs = make(map[string]*groupCatalog)
	a.mu.Unlock()
	return nil
}

// visible reports whether entry is visible to group g: tool-level
// allow/deny fully overrides the server-level fields for that tool.
func visible(entry toolEntry, g string) bool {
	allow, deny := entry.serverAllow, entry.serverDeny
	if entry.toolAllow != nil || entry.toolDeny != nil {
		allow, deny = entry.toolAllow, entry.toolDeny
	}
	if len(allow) > 0 && !contains(allow, g) {
		return false
	}
	if contains(deny, g) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// catalogFor returns the group's catalog, building it on first access.
func (a *Aggregator) catalogFor(g string) *groupCatalog {
	a.mu.RLock()
	if c, ok := a.catalogs[g]; ok {
		a.mu.RUnlock()
		return c
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.catalogs[g]; ok {
		return c
	}

	idx := registry.New()
	entries := make(map[string]toolEntry)
	for prefixed, entry := range a.all {
		if !visible(entry, g) {
			continue
		}
		entries[prefixed] = entry
		idx.Insert(registry.Document{ID: prefixed, Text: entry.toolName + " " + entry.description})
	}
	c := &groupCatalog{entries: entries, index: idx}
	a.catalogs[g] = c
	return c
}

// Search implements the aggregator's search tool: keywords matched
// against a group's RBAC-visible tools only, ties broken by ascending
// prefixed name.
func (a *Aggregator) Search(g string, keywords []string) []SearchResult {
	cat := a.catalogFor(g)
	hits := cat.index.Query(keywords)

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		entry := cat.entries[h.ID]
		out = append(out, SearchResult{
			Name:        entry.prefixedName,
			Description: entry.description,
			InputSchema: entry.inputSchema,
			Score:       h.Score,
		})
	}
	return out
}

// Execute implements the aggregator's execute tool: dispatch to the
// owning downstream if name is visible to g, otherwise method_not_found
// indistinguishable from a genuinely absent tool.
// inboundAuthorization is the caller's raw Authorization header value; it
// is only ever forwarded to the owning downstream, and only when that
// downstream is configured with auth.kind=forward_bearer — a static-token downstream never sees it, and it never
// leaks to any other server.
func (a *Aggregator) Execute(ctx context.Context, g, name string, arguments map[string]interface{}, inboundAuthorization string) (*protocol.CallToolResult, error) {
	serverName, toolName, ok := splitPrefixed(name)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.NotFound, "tool %q not found", name)
	}

	cat := a.catalogFor(g)
	entry, ok := cat.entries[name]
	if !ok || entry.serverName != serverName || entry.toolName != toolName {
		return nil, gatewayerr.New(gatewayerr.NotFound, "tool %q not found", name)
	}

	cl, err := a.mgr.GetClient(serverName)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "server %q unavailable", serverName)
	}

	if srvCfg, ok := a.cfg.Servers[serverName]; ok && srvCfg.Auth.Kind == gwconfig.DownstreamAuthForwardBearer {
		ctx = transport.WithBearerOverride(ctx, inboundAuthorization)
	}

	result, err := cl.CallTool(ctx, toolName, arguments)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.TransportError, err, "execute %q failed", name)
	}
	return result, nil
}

// splitPrefixed parses "<server>__<tool>" on the first "__" occurrence.
func splitPrefixed(name string) (server, tool string, ok bool) {
	idx := strings.Index(name, "__")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+2:], true
}

// Tools returns the two synthetic tools the aggregator exposes to
// clients, for a tools/list response on the /mcp surface.
func Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "search",
			Description: "Search the tool catalog by keyword. Returns name, description, input_schema, and score per hit.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"keywords": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
				"required": []interface{}{"keywords"},
			},
		},
		{
			Name:        "execute",
			Description: "Execute a tool discovered via search, addressed as \"<server>__<tool>\".",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":      map[string]interface{}{"type": "string"},
					"arguments": map[string]interface{}{"type": "object"},
				},
				"required": []interface{}{"name"},
			},
		},
	}
}
