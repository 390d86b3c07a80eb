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

// Package openai implements the IR <-> OpenAI chat-completions wire
// conversion and its SSE streaming parser.
package openai

import (
	"fmt"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// ToNative converts a unified request into an OpenAI ChatCompletionRequest.
func ToNative(req *ir.Request) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:    req.Model,
		Stream:   req.Stream,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		out.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		out.PresencePenalty = *req.PresencePenalty
	}
	out.Stop = req.StopSequences

	if req.System != "" {
		out.Messages = append(out.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, messageToNative(m))
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolToNative(t))
	}
	if req.ToolChoice != nil {
		out.ToolChoice = toolChoiceToNative(*req.ToolChoice)
	}
	return out
}

func messageToNative(m ir.UnifiedMessage) ChatMessage {
	switch m.Role {
	case ir.RoleSystem:
		return ChatMessage{Role: "system", Content: m.Content.PlainText()}
	case ir.RoleUser:
		return ChatMessage{Role: "user", Content: contentToNative(m.Content)}
	case ir.RoleTool:
		return ChatMessage{
			Role:       "tool",
			Content:    m.Content.PlainText(),
			ToolCallID: m.ToolCallID,
		}
	case ir.RoleAssistant:
		cm := ChatMessage{Role: "assistant"}
		if !m.Content.IsEmpty() {
			cm.Content = m.Content.PlainText()
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments.String(),
				},
			})
		}
		return cm
	default:
		return ChatMessage{Role: string(m.Role), Content: m.Content.PlainText()}
	}
}

// contentToNative renders a container as either a plain string (common
// case) or OpenAI's multimodal content-part array when image blocks exist.
func contentToNative(c ir.Container) interface{} {
	hasImage := false
	for _, b := range c.Blocks {
		if b.Kind == ir.ContentImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return c.PlainText()
	}
	var parts []map[string]interface{}
	for _, b := range c.Blocks {
		switch b.Kind {
		case ir.ContentText:
			parts = append(parts, map[string]interface{}{"type": "text", "text": b.Text})
		case ir.ContentImage:
			url := b.Image.URL
			if url == "" {
				url = fmt.Sprintf("data:%s;base64,%s", b.Image.MediaType, b.Image.Data)
			}
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": url},
			})
		}
	}
	return parts
}

func toolToNative(t ir.UnifiedTool) Tool {
	tool := Tool{
		Type: "function",
		Function: FunctionDef{
			Name:        t.Name,
			Description: t.Description,
		},
	}
	if t.Parameters != nil {
		tool.Function.Parameters = schemaToMap(t.Parameters)
	}
	return tool
}

func schemaToMap(s *ir.JSONSchema) map[string]interface{} {
	if s == nil {
		return nil
	}
	out := map[string]interface{}{}
	if s.Type != "" {
		out["type"] = s.Type
	} else {
		out["type"] = "object"
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := map[string]interface{}{}
		for k, v := range s.Properties {
			props[k] = schemaToMap(v)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = schemaToMap(s.Items)
	}
	if s.Enum != nil {
		out["enum"] = s.Enum
	}
	return out
}

func toolChoiceToNative(tc ir.ToolChoice) interface{} {
	switch tc.Kind {
	case ir.ToolChoiceNone:
		return "none"
	case ir.ToolChoiceRequired:
		return "required"
	case ir.ToolChoiceSpecific:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": tc.Name},
		}
	default:
		return "auto"
	}
}

// FromNativeResponse converts a buffered OpenAI response into the unified
// response shape.
func FromNativeResponse(resp *ChatCompletionResponse) *ir.Response {
	out := &ir.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: ir.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, ir.Choice{
			Index:        c.Index,
			Message:      messageFromNative(c.Message),
			FinishReason: finishReasonFromNative(c.FinishReason),
		})
	}
	return out
}

func messageFromNative(m ChatMessage) ir.UnifiedMessage {
	out := ir.UnifiedMessage{Role: ir.RoleAssistant, ToolCallID: m.ToolCallID}
	if s, ok := m.Content.(string); ok {
		out.Content = ir.TextContainer(s)
	} else {
		out.Content = ir.TextContainer("")
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ir.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Arguments: ir.UnifiedArguments{
				Form: ir.ArgumentsString,
				Raw:  tc.Function.Arguments,
			},
		})
	}
	return out
}

func finishReasonFromNative(s string) *ir.FinishReason {
	if s == "" {
		return nil
	}
	switch s {
	case "stop":
		return &ir.FinishReason{Kind: ir.FinishStop}
	case "length":
		return &ir.FinishReason{Kind: ir.FinishLength}
	case "tool_calls", "function_call":
		return &ir.FinishReason{Kind: ir.FinishToolCalls}
	case "content_filter":
		return &ir.FinishReason{Kind: ir.FinishContentFilter}
	default:
		return &ir.FinishReason{Kind: ir.FinishOther, Other: s}
	}
}

func finishReasonToNative(fr *ir.FinishReason) string {
	if fr == nil {
		return ""
	}
	switch fr.Kind {
	case ir.FinishStop:
		return "stop"
	case ir.FinishLength:
		return "length"
	case ir.FinishToolCalls:
		return "tool_calls"
	case ir.FinishContentFilter:
		return "content_filter"
	default:
		return fr.Other
	}
}

// ToNativeResponse converts a unified response into OpenAI's wire shape —
// used when the client requested the OpenAI protocol but the request was
// routed to a different upstream provider.
func ToNativeResponse(resp *ir.Response) *ChatCompletionResponse {
	out := &ChatCompletionResponse{
		ID:     resp.ID,
		Object: "chat.completion",
		Model:  resp.Model,
		Usage: ChatCompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		cm := ChatMessage{Role: "assistant", Content: c.Message.Content.PlainText()}
		for _, tc := range c.Message.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments.String(),
				},
			})
		}
		out.Choices = append(out.Choices, ChatCompletionChoice{
			Index:        c.Index,
			Message:      cm,
			FinishReason: finishReasonToNative(c.FinishReason),
		})
	}
	return out
}

// FromNativeRequest parses an inbound OpenAI-shaped client request into the
// unified IR — the reverse of ToNative, used by the HTTP surface when a
// client calls the OpenAI-shaped endpoint directly regardless of which
// provider the model routes to. The (only) system message is
// hoisted into the single IR System field, matching how Anthropic/Google
// segregate it.
func FromNativeRequest(req *ChatCompletionRequest) *ir.Request {
	out := &ir.Request{
		Model:         req.Model,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}
	if req.Temperature != 0 {
		v := req.Temperature
		out.Temperature = &v
	}
	if req.MaxTokens != 0 {
		v := req.MaxTokens
		out.MaxTokens = &v
	}
	if req.TopP != 0 {
		v := req.TopP
		out.TopP = &v
	}
	if req.FrequencyPenalty != 0 {
		v := req.FrequencyPenalty
		out.FrequencyPenalty = &v
	}
	if req.PresencePenalty != 0 {
		v := req.PresencePenalty
		out.PresencePenalty = &v
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if s, ok := m.Content.(string); ok && out.System == "" {
				out.System = s
			}
			continue
		}
		out.Messages = append(out.Messages, messageFromNativeRequest(m))
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolFromNative(t))
	}
	if req.ToolChoice != nil {
		out.ToolChoice = toolChoiceFromNative(req.ToolChoice)
	}
	return out
}

func messageFromNativeRequest(m ChatMessage) ir.UnifiedMessage {
	out := ir.UnifiedMessage{Role: ir.Role(m.Role), ToolCallID: m.ToolCallID, Content: containerFromNative(m.Content)}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ir.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: ir.UnifiedArguments{Form: ir.ArgumentsString, Raw: tc.Function.Arguments},
		})
	}
	return out
}

// containerFromNative accepts both OpenAI content forms — a plain string
// or a content-part array (text / image_url) — shared across adapters:
// both forms must deserialize identically.
func containerFromNative(content interface{}) ir.Container {
	switch v := content.(type) {
	case string:
		return ir.TextContainer(v)
	case []interface{}:
		var blocks []ir.UnifiedContent
		for _, part := range v {
			pm, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			switch pm["type"] {
			case "text":
				text, _ := pm["text"].(string)
				blocks = append(blocks, ir.UnifiedContent{Kind: ir.ContentText, Text: text})
			case "image_url":
				blocks = append(blocks, ir.UnifiedContent{Kind: ir.ContentImage, Image: &ir.ImageSource{URL: imageURLFromPart(pm)}})
			}
		}
		return ir.BlocksContainer(blocks...)
	default:
		return ir.TextContainer("")
	}
}

func imageURLFromPart(pm map[string]interface{}) string {
	iu, ok := pm["image_url"].(map[string]interface{})
	if !ok {
		return ""
	}
	url, _ := iu["url"].(string)
	return url
}

func toolFromNative(t Tool) ir.UnifiedTool {
	return ir.UnifiedTool{
		Name:        t.Function.Name,
		Description: t.Function.Description,
		Parameters:  schemaFromMap(t.Function.Parameters),
	}
}

func schemaFromMap(m map[string]interface{}) *ir.JSONSchema {
	if m == nil {
		return nil
	}
	out := &ir.JSONSchema{}
	if s, ok := m["type"].(string); ok {
		out.Type = s
	}
	if s, ok := m["description"].(string); ok {
		out.Description = s
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*ir.JSONSchema, len(props))
		for k, v := range props {
			if vm, ok := v.(map[string]interface{}); ok {
				out.Properties[k] = schemaFromMap(vm)
			}
		}
	}
	if req, ok := m["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		out.Items = schemaFromMap(items)
	}
	if enum, ok := m["enum"].([]interface{}); ok {
		out.Enum = enum
	}
	return out
}

func toolChoiceFromNative(raw interface{}) *ir.ToolChoice {
	switch v := raw.(type) {
	case string:
		switch v {
		case "none":
			return &ir.ToolChoice{Kind: ir.ToolChoiceNone}
		case "required":
			return &ir.ToolChoice{Kind: ir.ToolChoiceRequired}
		default:
			return &ir.ToolChoice{Kind: ir.ToolChoiceAuto}
		}
	case map[string]interface{}:
		if fn, ok := v["function"].(map[string]interface{}); ok {
			if name, ok := fn["name"].(string); ok {
				return &ir.ToolChoice{Kind: ir.ToolChoiceSpecific, Name: name}
			}
		}
		return &ir.ToolChoice{Kind: ir.ToolChoiceAuto}
	default:
		return &ir.ToolChoice{Kind: ir.ToolChoiceAuto}
	}
}
