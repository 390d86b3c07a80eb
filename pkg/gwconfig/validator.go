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
package gwconfig

import (
	"fmt"
	"sort"
)

// ValidationResult is the outcome of Validate: a fatal error (nil if the
// config is sound) plus advisory warnings that never block startup.
type ValidationResult struct {
	Warnings []string
}

// Validate runs every cross-cutting startup invariant check once, at load
// time, after TOML parse and string expansion. A non-nil error
// means the gateway must refuse to start.
func Validate(cfg *Config) (ValidationResult, error) {
	var result ValidationResult

	if err := checkDownstreamPresence(cfg); err != nil {
		return result, err
	}
	if err := checkProtocolEndpointUniqueness(cfg); err != nil {
		return result, err
	}
	if err := checkRateLimitsRequireIdentification(cfg); err != nil {
		return result, err
	}
	if err := checkGroupsRequireGroupConfig(cfg); err != nil {
		return result, err
	}
	if err := checkBedrockConstraints(cfg); err != nil {
		return result, err
	}
	result.Warnings = fallbackWarnings(cfg)

	return result, nil
}

// checkDownstreamPresence is invariant 1: at least one enabled MCP server
// or one enabled LLM provider must exist.
func checkDownstreamPresence(cfg *Config) error {
	for _, p := range cfg.LLM.Providers {
		if p.Enabled {
			return nil
		}
	}
	for _, s := range cfg.MCP.Servers {
		if s.Enabled {
			return nil
		}
	}
	return fmt.Errorf("config: no enabled LLM provider and no enabled MCP server — the gateway would serve nothing")
}

// checkProtocolEndpointUniqueness is invariant 2: if both OpenAI and
// Anthropic protocol endpoints are enabled, their paths must differ.
// enabled=true is the default for both protocol endpoints when the config
// is silent.
func checkProtocolEndpointUniqueness(cfg *Config) error {
	openai, hasOpenAI := cfg.LLM.Protocols["openai"]
	anthropic, hasAnthropic := cfg.LLM.Protocols["anthropic"]

	openAIEnabled := !hasOpenAI || openai.Enabled
	anthropicEnabled := !hasAnthropic || anthropic.Enabled

	if !openAIEnabled && !anthropicEnabled {
		return fmt.Errorf("config: no protocol endpoint enabled — at least one of llm.protocols.openai or llm.protocols.anthropic must be enabled")
	}
	if openAIEnabled && anthropicEnabled && openai.Path != "" && openai.Path == anthropic.Path {
		return fmt.Errorf("config: llm.protocols.openai.path and llm.protocols.anthropic.path must differ, both are %q", openai.Path)
	}
	return nil
}

// checkRateLimitsRequireIdentification is invariant 3.
func checkRateLimitsRequireIdentification(cfg *Config) error {
	if !anyRateLimitConfigured(cfg) {
		return nil
	}
	if !cfg.Server.ClientIdentification.Enabled {
		return fmt.Errorf("config: a rate limit is configured but server.client_identification.enabled is false")
	}
	return nil
}

func anyRateLimitConfigured(cfg *Config) bool {
	for _, p := range cfg.LLM.Providers {
		if p.RateLimits != nil {
			return true
		}
		for _, m := range p.Models {
			if m.RateLimits != nil {
				return true
			}
		}
	}
	return false
}

// checkGroupsRequireGroupConfig is invariant 4: any group-based rate limit
// or ACL requires a configured group_id source and a non-empty
// group_values list, and every referenced group name must appear in it.
func checkGroupsRequireGroupConfig(cfg *Config) error {
	groups := referencedGroups(cfg)
	if len(groups) == 0 {
		return nil
	}

	ci := cfg.Server.ClientIdentification
	if ci.GroupID == nil {
		return fmt.Errorf("config: group-based rate limits or ACLs are configured but server.client_identification.group_id is not set")
	}
	if len(ci.GroupValues) == 0 {
		return fmt.Errorf("config: group-based rate limits or ACLs are configured but server.client_identification.group_values is empty")
	}

	allowed := make(map[string]struct{}, len(ci.GroupValues))
	for _, g := range ci.GroupValues {
		allowed[g] = struct{}{}
	}

	missing := make([]string, 0)
	for g := range groups {
		if _, ok := allowed[g]; !ok {
			missing = append(missing, g)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config: group(s) %v are referenced by a rate limit or ACL but not listed in server.client_identification.group_values", missing)
	}
	return nil
}

func referencedGroups(cfg *Config) map[string]struct{} {
	groups := make(map[string]struct{})
	addTree := func(t *TokenRateLimits) {
		if t == nil {
			return
		}
		for g := range t.Groups {
			groups[g] = struct{}{}
		}
	}
	for _, p := range cfg.LLM.Providers {
		addTree(p.RateLimits)
		for _, m := range p.Models {
			addTree(m.RateLimits)
		}
	}
	for _, s := range cfg.MCP.Servers {
		for _, g := range s.Allow {
			groups[g] = struct{}{}
		}
		for _, g := range s.Deny {
			groups[g] = struct{}{}
		}
		for _, tool := range s.Tools {
			for _, g := range tool.Allow {
				groups[g] = struct{}{}
			}
			for _, g := range tool.Deny {
				groups[g] = struct{}{}
			}
		}
	}
	return groups
}

// checkBedrockConstraints enforces the Bedrock descriptor invariant: SigV4
// signs the entire request, so a Bedrock provider entry may not
// forward the inbound client's bearer token and may not attach custom
// per-model headers (both would be silently discarded or conflict with
// the signature, so the gateway rejects them at load time instead).
func checkBedrockConstraints(cfg *Config) error {
	for key, p := range cfg.LLM.Providers {
		if p.Kind != ProviderBedrock {
			continue
		}
		if p.ForwardToken {
			return fmt.Errorf("config: provider %q is type bedrock and cannot set forward_token=true (SigV4 signs the whole request)", key)
		}
		for modelID, m := range p.Models {
			if len(m.Headers) > 0 {
				return fmt.Errorf("config: provider %q model %q is bedrock and cannot configure custom headers (SigV4 signs the whole request)", key, modelID)
			}
		}
	}
	return nil
}

// fallbackWarnings is invariant 5: for every (model, group) where no
// direct limit exists but some ancestor does, emit a warning listing the
// ancestor used. The universe of groups is the configured group_values
// list (a group with no configured rate limit at all needs no warning).
func fallbackWarnings(cfg *Config) []string {
	var warnings []string
	groupValues := cfg.Server.ClientIdentification.GroupValues

	providerKeys := make([]string, 0, len(cfg.LLM.Providers))
	for key := range cfg.LLM.Providers {
		providerKeys = append(providerKeys, key)
	}
	sort.Strings(providerKeys)

	for _, providerKey := range providerKeys {
		p := cfg.LLM.Providers[providerKey]
		if !p.Enabled {
			continue
		}
		modelIDs := make([]string, 0, len(p.Models))
		for id := range p.Models {
			modelIDs = append(modelIDs, id)
		}
		sort.Strings(modelIDs)

		for _, modelID := range modelIDs {
			m := p.Models[modelID]
			for _, group := range groupValues {
				window, level := ResolveWindow(m.RateLimits, p.RateLimits, group)
				if window == nil {
					continue
				}
				if level != MostSpecificLevel(group) {
					warnings = append(warnings, fmt.Sprintf(
						"rate limit for model %q group %q falls back to %s (no more specific limit configured)",
						providerKey+"/"+modelID, group, level))
				}
			}
		}
	}
	return warnings
}
