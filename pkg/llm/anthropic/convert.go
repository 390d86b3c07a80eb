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

// Package anthropic implements the IR <-> Anthropic Messages API wire
// conversion, its typed-event streaming state machine, and the HTTP
// dispatch client.
package anthropic

import (
	"encoding/json"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
)

// Validate checks the two Anthropic-specific invariants that must be
// rejected before dispatch: duplicate tool_use ids within a single
// assistant message, and tool_use ids with no following tool_result.
func Validate(messages []ir.UnifiedMessage) error {
	for i, m := range messages {
		if m.Role != ir.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		if dups := ir.DuplicateToolUseIDs(m); len(dups) > 0 {
			return gatewayerr.New(gatewayerr.InvalidRequest, "duplicate tool_use id(s) in assistant message: %v", dups)
		}
		var following []ir.UnifiedMessage
		if i+1 < len(messages) {
			following = messages[i+1:]
		}
		if missing := ir.MissingToolResults(m, following); len(missing) > 0 {
			return gatewayerr.New(gatewayerr.InvalidRequest, "tool_use id(s) missing a tool_result: %v", missing)
		}
	}
	return nil
}

// ToNative converts a unified request into an Anthropic MessagesRequest.
func ToNative(req *ir.Request) (*MessagesRequest, error) {
	if err := Validate(req.Messages); err != nil {
		return nil, err
	}

	out := &MessagesRequest{
		Model:         req.Model,
		System:        req.System,
		Stream:        req.Stream,
		StopSequences: req.StopSequences,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else {
		out.MaxTokens = 4096
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}
	if req.TopK != nil {
		out.TopK = *req.TopK
	}

	grouped := ir.GroupConsecutiveToolMessages(req.Messages)
	for _, item := range grouped {
		switch v := item.(type) {
		case ir.UnifiedMessage:
			out.Messages = append(out.Messages, messageToNative(v))
		case ir.ToolResultGroup:
			out.Messages = append(out.Messages, toolGroupToNative(v))
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolToNative(t))
	}
	if req.ToolChoice != nil {
		out.ToolChoice = toolChoiceToNative(*req.ToolChoice)
	}
	return out, nil
}

func messageToNative(m ir.UnifiedMessage) Message {
	switch m.Role {
	case ir.RoleAssistant:
		var blocks []ContentBlock
		if !m.Content.IsEmpty() {
			blocks = append(blocks, contentBlocksFromContainer(m.Content)...)
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, toolUseBlock(tc))
		}
		return Message{Role: "assistant", Content: blocks}
	default:
		return Message{Role: "user", Content: contentBlocksFromContainer(m.Content)}
	}
}

// toolUseBlock renders one tool call as a tool_use content block. Arguments
// that are already valid JSON pass through byte-for-byte; a string that
// fails to parse falls back to an empty object, since Anthropic requires a
// structured input field.
func toolUseBlock(tc ir.ToolCall) ContentBlock {
	block := ContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name}
	if raw, ok := tc.Arguments.RawJSON(); ok {
		block.Input = raw
	} else {
		block.Input = json.RawMessage("{}")
	}
	return block
}

// toolGroupToNative renders a run of consecutive tool-role messages as one
// Anthropic user turn, each folded into a tool_result content block.
func toolGroupToNative(g ir.ToolResultGroup) Message {
	var blocks []ContentBlock
	for _, m := range g.Results {
		block := ContentBlock{Type: "tool_result", ToolUseID: m.ToolCallID}
		if len(m.Content.Blocks) == 1 && m.Content.Blocks[0].Kind == ir.ContentToolResult {
			src := m.Content.Blocks[0]
			block.IsError = src.ToolResultIsError
			if src.ToolResultContent.Text != nil {
				block.Content = *src.ToolResultContent.Text
			} else if len(src.ToolResultContent.Multiple) > 0 {
				var nested []ContentBlock
				for _, s := range src.ToolResultContent.Multiple {
					nested = append(nested, ContentBlock{Type: "text", Text: s})
				}
				block.Content = nested
			}
		} else {
			block.Content = m.Content.PlainText()
		}
		blocks = append(blocks, block)
	}
	return Message{Role: "user", Content: blocks}
}

func contentBlocksFromContainer(c ir.Container) []ContentBlock {
	if c.Text != nil {
		return []ContentBlock{{Type: "text", Text: *c.Text}}
	}
	var out []ContentBlock
	for _, b := range c.Blocks {
		switch b.Kind {
		case ir.ContentText:
			out = append(out, ContentBlock{Type: "text", Text: b.Text})
		case ir.ContentImage:
			out = append(out, ContentBlock{
				Type: "image",
				Source: &ImageSource{
					Type:      imageSourceType(b.Image),
					MediaType: b.Image.MediaType,
					Data:      b.Image.Data,
					URL:       b.Image.URL,
				},
			})
		}
	}
	return out
}

func imageSourceType(img *ir.ImageSource) string {
	if img != nil && img.URL != "" {
		return "url"
	}
	return "base64"
}

func toolToNative(t ir.UnifiedTool) Tool {
	tool := Tool{Name: t.Name, Description: t.Description}
	if t.Parameters != nil {
		tool.InputSchema = InputSchema{
			Type:       orDefault(t.Parameters.Type, "object"),
			Properties: schemaPropsToMap(t.Parameters.Properties),
			Required:   t.Parameters.Required,
		}
	} else {
		tool.InputSchema = InputSchema{Type: "object"}
	}
	return tool
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

func schemaPropsToMap(props map[string]*ir.JSONSchema) map[string]map[string]interface{} {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]map[string]interface{}, len(props))
	for k, v := range props {
		m := map[string]interface{}{"type": orDefault(v.Type, "string")}
		if v.Description != "" {
			m["description"] = v.Description
		}
		if v.Enum != nil {
			m["enum"] = v.Enum
		}
		if v.Items != nil {
			m["items"] = map[string]interface{}{"type": orDefault(v.Items.Type, "string")}
		}
		if len(v.Properties) > 0 {
			m["properties"] = schemaPropsToMap(v.Properties)
		}
		out[k] = m
	}
	return out
}

func toolChoiceToNative(tc ir.ToolChoice) interface{} {
	switch tc.Kind {
	case ir.ToolChoiceNone:
		// Anthropic has no "none" tool_choice; omit tools entirely upstream
		// of this call when that's required.
		return map[string]interface{}{"type": "auto"}
	case ir.ToolChoiceRequired:
		return map[string]interface{}{"type": "any"}
	case ir.ToolChoiceSpecific:
		return map[string]interface{}{"type": "tool", "name": tc.Name}
	default:
		return map[string]interface{}{"type": "auto"}
	}
}

// FromNativeResponse converts a buffered Anthropic response into the
// unified response shape.
func FromNativeResponse(resp *MessagesResponse) *ir.Response {
	msg := ir.UnifiedMessage{Role: ir.RoleAssistant}
	var textBlocks []ir.UnifiedContent
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			textBlocks = append(textBlocks, ir.UnifiedContent{Kind: ir.ContentText, Text: b.Text})
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Arguments: ir.UnifiedArguments{
					Form:  ir.ArgumentsValue,
					Value: json.RawMessage(b.Input),
				},
			})
		}
	}
	if len(textBlocks) > 0 {
		msg.Content = ir.BlocksContainer(textBlocks...)
	} else {
		msg.Content = ir.TextContainer("")
	}

	return &ir.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: ir.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Choices: []ir.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReasonFromNative(resp.StopReason),
		}},
	}
}

func finishReasonFromNative(s string) *ir.FinishReason {
	if s == "" {
		return nil
	}
	switch s {
	case "end_turn", "stop_sequence", "pause_turn":
		return &ir.FinishReason{Kind: ir.FinishStop}
	case "max_tokens":
		return &ir.FinishReason{Kind: ir.FinishLength}
	case "tool_use":
		return &ir.FinishReason{Kind: ir.FinishToolCalls}
	case "refusal":
		return &ir.FinishReason{Kind: ir.FinishContentFilter}
	default:
		return &ir.FinishReason{Kind: ir.FinishOther, Other: s}
	}
}

// ToNativeResponse converts a unified response into Anthropic's wire
// shape — used when the client requested the Anthropic protocol but the
// request was routed to a different upstream provider.
func ToNativeResponse(resp *ir.Response) *MessagesResponse {
	out := &MessagesResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = contentBlocksFromContainer(choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, toolUseBlock(tc))
	}
	switch {
	case choice.FinishReason == nil:
	case choice.FinishReason.Kind == ir.FinishStop:
		out.StopReason = "end_turn"
	case choice.FinishReason.Kind == ir.FinishLength:
		out.StopReason = "max_tokens"
	case choice.FinishReason.Kind == ir.FinishToolCalls:
		out.StopReason = "tool_use"
	default:
		out.StopReason = choice.FinishReason.Other
	}
	return out
}

// FromNativeRequest parses an inbound Anthropic Messages request into the
// unified IR — the reverse of ToNative, used by the HTTP surface when a
// client calls the Anthropic-shaped endpoint directly. A
// tool_result content block ungroups back into its own tool-role
// UnifiedMessage, mirroring ToNative's grouping in reverse.
func FromNativeRequest(req *MessagesRequest) *ir.Request {
	out := &ir.Request{
		Model:         req.Model,
		System:        req.System,
		Stream:        req.Stream,
		StopSequences: req.StopSequences,
	}
	if req.MaxTokens != 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.TopP != 0 {
		p := req.TopP
		out.TopP = &p
	}
	if req.TopK != 0 {
		k := req.TopK
		out.TopK = &k
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, messagesFromNative(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolFromNative(t))
	}
	if tc := toolChoiceFromNative(req.ToolChoice); tc != nil {
		out.ToolChoice = tc
	}
	return out
}

// messagesFromNative converts one wire Message into one or more unified
// messages: a user turn carrying tool_result blocks ungroups into one
// tool-role UnifiedMessage per block, since the IR keeps each tool result
// as its own message.
func messagesFromNative(m Message) []ir.UnifiedMessage {
	var toolResults []ir.UnifiedMessage
	var rest []ContentBlock
	for _, b := range m.Content {
		if b.Type == "tool_result" {
			toolResults = append(toolResults, toolResultFromNative(b))
			continue
		}
		rest = append(rest, b)
	}

	if len(rest) == 0 {
		return toolResults
	}

	role := ir.RoleUser
	if m.Role == "assistant" {
		role = ir.RoleAssistant
	}
	um := ir.UnifiedMessage{Role: role}
	var blocks []ir.UnifiedContent
	for _, b := range rest {
		switch b.Type {
		case "text":
			blocks = append(blocks, ir.UnifiedContent{Kind: ir.ContentText, Text: b.Text})
		case "tool_use":
			um.ToolCalls = append(um.ToolCalls, ir.ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Arguments: ir.UnifiedArguments{
					Form:  ir.ArgumentsValue,
					Value: b.Input,
				},
			})
		case "image":
			if b.Source != nil {
				blocks = append(blocks, ir.UnifiedContent{
					Kind: ir.ContentImage,
					Image: &ir.ImageSource{
						MediaType: b.Source.MediaType,
						Data:      b.Source.Data,
						URL:       b.Source.URL,
					},
				})
			}
		}
	}
	if len(blocks) == 1 && blocks[0].Kind == ir.ContentText && len(um.ToolCalls) == 0 {
		um.Content = ir.TextContainer(blocks[0].Text)
	} else if len(blocks) > 0 {
		um.Content = ir.BlocksContainer(blocks...)
	}

	return append([]ir.UnifiedMessage{um}, toolResults...)
}

func toolResultFromNative(b ContentBlock) ir.UnifiedMessage {
	content := ir.UnifiedContent{Kind: ir.ContentToolResult, ToolResultID: b.ToolUseID, ToolResultIsError: b.IsError}
	switch v := b.Content.(type) {
	case string:
		content.ToolResultContent = ir.ToolResultContent{Text: &v}
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		content.ToolResultContent = ir.ToolResultContent{Multiple: parts}
	default:
		empty := ""
		content.ToolResultContent = ir.ToolResultContent{Text: &empty}
	}
	return ir.UnifiedMessage{
		Role:       ir.RoleTool,
		ToolCallID: b.ToolUseID,
		Content:    ir.BlocksContainer(content),
	}
}

func toolFromNative(t Tool) ir.UnifiedTool {
	schema := &ir.JSONSchema{Type: orDefault(t.InputSchema.Type, "object"), Required: t.InputSchema.Required}
	if len(t.InputSchema.Properties) > 0 {
		schema.Properties = map[string]*ir.JSONSchema{}
		for k, v := range t.InputSchema.Properties {
			prop := &ir.JSONSchema{}
			if typ, ok := v["type"].(string); ok {
				prop.Type = typ
			}
			if desc, ok := v["description"].(string); ok {
				prop.Description = desc
			}
			schema.Properties[k] = prop
		}
	}
	return ir.UnifiedTool{Name: t.Name, Description: t.Description, Parameters: schema}
}

func toolChoiceFromNative(raw interface{}) *ir.ToolChoice {
	switch v := raw.(type) {
	case string:
		switch v {
		case "none":
			return &ir.ToolChoice{Kind: ir.ToolChoiceNone}
		case "any":
			return &ir.ToolChoice{Kind: ir.ToolChoiceRequired}
		case "auto":
			return &ir.ToolChoice{Kind: ir.ToolChoiceAuto}
		}
	case map[string]interface{}:
		if typ, _ := v["type"].(string); typ == "tool" {
			if name, ok := v["name"].(string); ok {
				return &ir.ToolChoice{Kind: ir.ToolChoiceSpecific, Name: name}
			}
		}
		if typ, _ := v["type"].(string); typ == "any" {
			return &ir.ToolChoice{Kind: ir.ToolChoiceRequired}
		}
	}
	return nil
}
