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

// Package gemini implements the IR <-> Google GenerateContent wire
// conversion, its chunked streaming reader, and the HTTP dispatch client.
package gemini

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// ToNative converts a unified request into a Gemini GenerateContentRequest.
// The request's System text is hoisted into systemInstruction (Gemini has
// no system role in contents) and system-role entries in Messages are
// skipped; tool-role messages become user turns carrying
// functionResponse parts, keyed back to their originating function name
// via idToName (Gemini identifies function results by name, not call id).
func ToNative(req *ir.Request, logger *zap.Logger) *GenerateContentRequest {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := &GenerateContentRequest{}
	cfg := GenerationConfig{StopSequences: req.StopSequences}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.MaxTokens
	}
	out.GenerationConfig = cfg

	if req.System != "" {
		out.SystemInstruction = &Content{Role: "user", Parts: []Part{{Text: req.System}}}
	}

	idToName := make(map[string]string)
	for _, m := range req.Messages {
		if m.Role == ir.RoleAssistant {
			for _, tc := range m.ToolCalls {
				idToName[tc.ID] = tc.Name
			}
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case ir.RoleSystem:
			continue
		case ir.RoleUser:
			out.Contents = append(out.Contents, Content{Role: "user", Parts: partsFromContainer(m.Content)})
		case ir.RoleAssistant:
			var parts []Part
			if !m.Content.IsEmpty() {
				parts = append(parts, partsFromContainer(m.Content)...)
			}
			for _, tc := range m.ToolCalls {
				args, _ := tc.Arguments.AsValue()
				parts = append(parts, Part{FunctionCall: &FunctionCall{Name: tc.Name, Args: args}})
			}
			out.Contents = append(out.Contents, Content{Role: "model", Parts: parts})
		case ir.RoleTool:
			name := idToName[m.ToolCallID]
			if name == "" {
				// No prior assistant turn named this call id; Gemini keys
				// function responses by name, so fall back to the id itself.
				name = m.ToolCallID
				logger.Warn("no function name recorded for tool result, using call id as name",
					zap.String("tool_call_id", m.ToolCallID))
			}
			response := map[string]interface{}{}
			if len(m.Content.Blocks) == 1 && m.Content.Blocks[0].Kind == ir.ContentToolResult {
				b := m.Content.Blocks[0]
				if b.ToolResultContent.Text != nil {
					response["result"] = *b.ToolResultContent.Text
				} else if len(b.ToolResultContent.Multiple) > 0 {
					response["result"] = b.ToolResultContent.Multiple
				}
				if b.ToolResultIsError != nil && *b.ToolResultIsError {
					response["error"] = true
				}
			} else {
				response["result"] = m.Content.PlainText()
			}
			out.Contents = append(out.Contents, Content{
				Role:  "user",
				Parts: []Part{{FunctionResponse: &FunctionResponse{Name: name, Response: response}}},
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{FunctionDeclarations: []FunctionDeclaration{toolDeclFromUnified(t)}})
	}
	if req.ToolChoice != nil {
		out.ToolConfig = toolConfigFromChoice(*req.ToolChoice)
	}
	return out
}

func partsFromContainer(c ir.Container) []Part {
	if c.Text != nil {
		return []Part{{Text: *c.Text}}
	}
	var parts []Part
	for _, b := range c.Blocks {
		switch b.Kind {
		case ir.ContentText:
			parts = append(parts, Part{Text: b.Text})
		case ir.ContentImage:
			if b.Image != nil && b.Image.Data != "" {
				parts = append(parts, Part{InlineData: &InlineData{MimeType: b.Image.MediaType, Data: b.Image.Data}})
			} else {
				parts = append(parts, Part{Text: ir.PlaceholderForUnsupportedImage})
			}
		}
	}
	return parts
}

func toolDeclFromUnified(t ir.UnifiedTool) FunctionDeclaration {
	decl := FunctionDeclaration{Name: t.Name, Description: t.Description}
	if t.Parameters != nil {
		decl.Parameters = sanitizeSchema(t.Parameters)
	}
	return decl
}

// sanitizeSchema drops JSON-Schema fields Gemini's function-parameter
// schema subset doesn't accept: $schema, additionalProperties, default, and
// any format value other than the handful Gemini recognizes for strings
// (date-time, enum). Unsupported fields are silently dropped rather than
// rejected, matching the forgiving conversion posture elsewhere.
func sanitizeSchema(s *ir.JSONSchema) Schema {
	out := Schema{
		Type:        orDefaultType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if s.Format == "date-time" || s.Format == "enum" {
		out.Format = s.Format
	}
	if s.Items != nil {
		items := sanitizeSchema(s.Items)
		out.Items = &items
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = sanitizeSchema(v)
		}
	}
	return out
}

func orDefaultType(t string) string {
	if t == "" {
		return "object"
	}
	return t
}

func toolConfigFromChoice(tc ir.ToolChoice) *ToolConfig {
	switch tc.Kind {
	case ir.ToolChoiceNone:
		return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "NONE"}}
	case ir.ToolChoiceRequired:
		return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "ANY"}}
	case ir.ToolChoiceSpecific:
		return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "ANY", AllowedFunctionNames: []string{tc.Name}}}
	default:
		return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "AUTO"}}
	}
}

// FromNativeResponse converts a buffered Gemini response into the unified
// response shape. Gemini function_call parts carry no call id, so mintID
// mints a synthetic tool_use id per call; when the results come back,
// ToNative rebuilds the (id -> function name) mapping from the assistant
// turns in the request history.
func FromNativeResponse(resp *GenerateContentResponse, mintID func() string) *ir.Response {
	out := &ir.Response{}
	if resp.UsageMetadata.TotalTokenCount != 0 || resp.UsageMetadata.PromptTokenCount != 0 {
		out.Usage = ir.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	for _, cand := range resp.Candidates {
		msg := ir.UnifiedMessage{Role: ir.RoleAssistant}
		var textBlocks []ir.UnifiedContent
		for _, p := range cand.Content.Parts {
			switch {
			case p.Text != "":
				textBlocks = append(textBlocks, ir.UnifiedContent{Kind: ir.ContentText, Text: p.Text})
			case p.FunctionCall != nil:
				var raw []byte
				if p.FunctionCall.Args != nil {
					raw, _ = json.Marshal(p.FunctionCall.Args)
				}
				msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
					ID:   mintID(),
					Name: p.FunctionCall.Name,
					Arguments: ir.UnifiedArguments{
						Form:  ir.ArgumentsValue,
						Value: raw,
					},
				})
			}
		}
		if len(textBlocks) > 0 {
			msg.Content = ir.BlocksContainer(textBlocks...)
		} else {
			msg.Content = ir.TextContainer("")
		}
		out.Choices = append(out.Choices, ir.Choice{
			Index:        cand.Index,
			Message:      msg,
			FinishReason: finishReasonFromNative(cand.FinishReason),
		})
	}
	return out
}

func finishReasonFromNative(s string) *ir.FinishReason {
	if s == "" {
		return nil
	}
	switch s {
	case "STOP":
		return &ir.FinishReason{Kind: ir.FinishStop}
	case "MAX_TOKENS":
		return &ir.FinishReason{Kind: ir.FinishLength}
	case "SAFETY", "RECITATION":
		return &ir.FinishReason{Kind: ir.FinishContentFilter}
	default:
		return &ir.FinishReason{Kind: ir.FinishOther, Other: s}
	}
}
