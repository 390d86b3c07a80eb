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
package ir

// ToolResultGroup is a run of consecutive tool-role messages, folded
// together because Anthropic, Google, and Bedrock all expect one user-role
// turn per group of tool results rather than OpenAI's one message per
// result.
type ToolResultGroup struct {
	Results []UnifiedMessage
}

// GroupConsecutiveToolMessages walks messages and folds consecutive
// RoleTool runs into ToolResultGroup markers, leaving everything else
// untouched. The returned slice has the same logical ordering; a caller
// converting to a target wire format renders each group as a single turn.
func GroupConsecutiveToolMessages(messages []UnifiedMessage) []interface{} {
	var out []interface{}
	i := 0
	for i < len(messages) {
		if messages[i].Role == RoleTool {
			j := i
			var group ToolResultGroup
			for j < len(messages) && messages[j].Role == RoleTool {
				group.Results = append(group.Results, messages[j])
				j++
			}
			out = append(out, group)
			i = j
			continue
		}
		out = append(out, messages[i])
		i++
	}
	return out
}

// DuplicateToolUseIDs returns the set of tool_use ids that appear more than
// once among an assistant message's tool calls. Anthropic invariant (a):
// such requests must be rejected before dispatch.
func DuplicateToolUseIDs(msg UnifiedMessage) []string {
	seen := make(map[string]int)
	var order []string
	for _, tc := range msg.ToolCalls {
		if seen[tc.ID] == 0 {
			order = append(order, tc.ID)
		}
		seen[tc.ID]++
	}
	var dups []string
	for _, id := range order {
		if seen[id] > 1 {
			dups = append(dups, id)
		}
	}
	return dups
}

// MissingToolResults returns tool_use ids from the given assistant message
// that have no corresponding tool_result id among the following messages
// (checked only up to the next assistant/user message boundary, matching
// Anthropic's own "next message" requirement for tool_result pairing).
func MissingToolResults(assistantMsg UnifiedMessage, following []UnifiedMessage) []string {
	have := make(map[string]bool)
	for _, m := range following {
		if m.Role != RoleTool {
			break
		}
		have[m.ToolCallID] = true
		for _, b := range m.Content.Blocks {
			if b.Kind == ContentToolResult {
				have[b.ToolResultID] = true
			}
		}
	}
	var missing []string
	for _, tc := range assistantMsg.ToolCalls {
		if !have[tc.ID] {
			missing = append(missing, tc.ID)
		}
	}
	return missing
}
