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
	"time"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
	"github.com/teradata-labs/loomgate/pkg/identity"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/ratelimit"
	"github.com/teradata-labs/loomgate/pkg/router"
)

// admit resolves the effective rate-limit window for (resolution, identity)
// per the precedence table and checks the request's predicted
// token cost against it, returning the scope key for later reconciliation.
// The scope key reflects the level that supplied the window: a limit
// defined at provider.default must share one bucket across every model and
// group it covers, not split per model.
func (g *Gateway) admit(res *router.Resolution, ident identity.Identity, req *ir.Request) (string, error) {
	var modelLimits *gwconfig.TokenRateLimits
	if res.ModelEntry != nil {
		modelLimits = res.ModelEntry.RateLimits
	}
	providerLimits := g.ProviderLimits[res.ProviderKey]

	window, level := gwconfig.ResolveWindow(modelLimits, providerLimits, ident.GroupID)
	scope := scopeForLevel(res, ident, level)
	predicted := predictedTokens(req)

	if err := g.Limiter.Admit(ident.ClientID, scope, window, predicted, time.Now()); err != nil {
		return scope, err
	}
	return scope, nil
}

// modelHeaders flattens an explicit model entry's header rules for the
// dispatching adapter; nil when the resolution had no explicit entry.
func modelHeaders(res *router.Resolution) map[string]string {
	if res.ModelEntry == nil || len(res.ModelEntry.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(res.ModelEntry.Headers))
	for _, h := range res.ModelEntry.Headers {
		out[h.Name] = h.Value
	}
	return out
}

func scopeForLevel(res *router.Resolution, ident identity.Identity, level gwconfig.ResolveLevel) string {
	model, group := "", ""
	switch level {
	case gwconfig.LevelModelGroup:
		model, group = res.UpstreamModel, ident.GroupID
	case gwconfig.LevelModelDefault:
		model = res.UpstreamModel
	case gwconfig.LevelProviderGroup:
		group = ident.GroupID
	}
	return ratelimit.ScopeKey(res.ProviderKey, model, group)
}

// reconcile applies the gap between what was predicted and what the
// upstream actually reported.
func (g *Gateway) reconcile(ident identity.Identity, scope string, predicted int, usage *ir.Usage) {
	if usage == nil {
		return
	}
	delta := usage.PromptTokens - predicted
	g.Limiter.Reconcile(ident.ClientID, scope, delta)
}
