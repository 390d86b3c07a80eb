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

// Package router maps a requested model string to a concrete
// (provider, upstream-model) pair. The registry is populated
// once at startup, in configuration order, then read-only for the life of
// the process.
package router

import (
	"regexp"
	"strings"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/gwconfig"
)

// Entry is one registered provider: its routing rules, in the order it
// was declared in configuration.
type Entry struct {
	Key         string
	Kind        gwconfig.ProviderKind
	ModelFilter *regexp.Regexp // nil if the provider declared none
	Models      map[string]gwconfig.ModelEntry
}

// Resolution is the outcome of resolving a client-supplied model string:
// which provider serves it and the model id to send upstream.
type Resolution struct {
	ProviderKey   string
	Kind          gwconfig.ProviderKind
	UpstreamModel string
	ModelEntry    *gwconfig.ModelEntry // nil when no explicit entry matched
}

// Registry holds the provider routing table. Build with NewRegistry and
// Register in configuration order, then treat as read-only.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register appends a provider entry, preserving insertion order for
// auto-routing.
func (r *Registry) Register(e Entry) {
	if _, exists := r.entries[e.Key]; !exists {
		r.order = append(r.order, e.Key)
	}
	r.entries[e.Key] = e
}

// Entries returns the registered providers in configuration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key])
	}
	return out
}

// Models lists every "<provider>/<model>" the registry knows about —
// explicit entries only, for the GET /v1/models surface. Models
// reachable only via a provider's regex model_filter are not enumerable
// and are intentionally omitted.
func (r *Registry) Models() []string {
	var out []string
	for _, key := range r.order {
		for modelID := range r.entries[key].Models {
			out = append(out, key+"/"+modelID)
		}
	}
	return out
}

// Resolve implements the model resolution algorithm: explicit entries
// first, then auto-routing via each provider's model_filter.
func (r *Registry) Resolve(model string) (*Resolution, error) {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		providerKey, modelID := model[:idx], model[idx+1:]
		entry, ok := r.entries[providerKey]
		if !ok {
			return nil, gatewayerr.New(gatewayerr.ModelNotFound, "no provider registered for key %q", providerKey)
		}
		return resolveWithinProvider(entry, modelID), nil
	}

	for _, key := range r.order {
		entry := r.entries[key]
		if res := tryResolve(entry, model); res != nil {
			return res, nil
		}
	}
	return nil, gatewayerr.New(gatewayerr.ModelNotFound, "no provider claims model %q", model)
}

// resolveWithinProvider handles the explicit "<provider>/<model>" form: an
// explicit entry's rename applies if present, otherwise the model id
// passes through unchanged — the caller named the provider directly, so
// no model_filter match is required.
func resolveWithinProvider(entry Entry, modelID string) *Resolution {
	if me, ok := entry.Models[modelID]; ok {
		return &Resolution{
			ProviderKey:   entry.Key,
			Kind:          entry.Kind,
			UpstreamModel: renameOrSelf(me, modelID),
			ModelEntry:    &me,
		}
	}
	return &Resolution{ProviderKey: entry.Key, Kind: entry.Kind, UpstreamModel: modelID}
}

// tryResolve handles one provider during auto-routing: an explicit entry
// takes precedence over the model_filter regex within the same provider.
func tryResolve(entry Entry, model string) *Resolution {
	if me, ok := entry.Models[model]; ok {
		return &Resolution{
			ProviderKey:   entry.Key,
			Kind:          entry.Kind,
			UpstreamModel: renameOrSelf(me, model),
			ModelEntry:    &me,
		}
	}
	if entry.ModelFilter != nil && entry.ModelFilter.MatchString(model) {
		return &Resolution{ProviderKey: entry.Key, Kind: entry.Kind, UpstreamModel: model}
	}
	return nil
}

func renameOrSelf(me gwconfig.ModelEntry, modelID string) string {
	if me.Rename != "" {
		return me.Rename
	}
	return modelID
}

// CompileModelFilter compiles a provider's configured model_filter regex
// for case-insensitive matching. An empty pattern
// compiles to nil (no filter).
func CompileModelFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}
