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

// ResolveLevel names which level of the precedence tree supplied the
// effective window, for warning messages.
type ResolveLevel string

const (
	LevelModelGroup       ResolveLevel = "model.groups"
	LevelModelDefault     ResolveLevel = "model.default"
	LevelProviderGroup    ResolveLevel = "provider.groups"
	LevelProviderDefault  ResolveLevel = "provider.default"
	LevelUnlimited        ResolveLevel = "unlimited"
)

// ResolveWindow implements the rate-limit lookup precedence:
//
//	model.groups[g] -> model.default -> provider.groups[g] -> provider.default -> unlimited
//
// The first defined level wins. Either tree may be nil.
func ResolveWindow(model, provider *TokenRateLimits, group string) (*Window, ResolveLevel) {
	if model != nil && group != "" {
		if w, ok := model.Groups[group]; ok {
			return &w, LevelModelGroup
		}
	}
	if model != nil && model.Default != nil {
		return model.Default, LevelModelDefault
	}
	if provider != nil && group != "" {
		if w, ok := provider.Groups[group]; ok {
			return &w, LevelProviderGroup
		}
	}
	if provider != nil && provider.Default != nil {
		return provider.Default, LevelProviderDefault
	}
	return nil, LevelUnlimited
}

// MostSpecificLevel is the level ResolveWindow returns when an exact
// (model, group) limit is configured and a group is in play; used by the
// validator to decide whether a fallback warning is warranted.
func MostSpecificLevel(group string) ResolveLevel {
	if group == "" {
		return LevelModelDefault
	}
	return LevelModelGroup
}
