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

// Package bedrock implements the IR <-> AWS Bedrock Converse wire
// conversion, its event-stream reader, and the HTTP dispatch client. Unlike
// the other three adapters it speaks a typed AWS SDK request/response, not
// raw JSON, so conversion targets bedrocktypes values directly.
package bedrock

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// toolNameRE matches the characters Bedrock accepts in a tool name
// (^[a-zA-Z0-9_-]{1,64}$); anything else gets sanitized before it crosses
// the wire and restored afterward via the client's toolNameMap.
var toolNameRE = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeToolName(name string) string {
	sanitized := toolNameRE.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

// toolChoiceCapability describes whether a model family can honor a forced
// tool choice, keyed by family prefix.
type toolChoiceCapability struct {
	forceAny      bool
	forceSpecific bool
}

var familyCapabilities = []struct {
	prefix string
	cap    toolChoiceCapability
}{
	{"anthropic.", toolChoiceCapability{true, true}},
	{"amazon.nova", toolChoiceCapability{true, true}},
	{"amazon.titan", toolChoiceCapability{false, false}},
	{"cohere.", toolChoiceCapability{false, true}},
	{"meta.", toolChoiceCapability{true, true}},
	{"us.meta.", toolChoiceCapability{true, true}},
	{"us.deepseek.", toolChoiceCapability{true, true}},
	{"ai21.jamba", toolChoiceCapability{true, true}},
}

// capabilityFor matches a Bedrock model id against the family-prefix table,
// falling back to the conservative "unknown" row (neither forced mode
// supported) when nothing matches.
func capabilityFor(modelID string) toolChoiceCapability {
	for _, f := range familyCapabilities {
		if strings.HasPrefix(modelID, f.prefix) {
			return f.cap
		}
	}
	return toolChoiceCapability{false, false}
}

// toolChoiceToConverse maps a unified tool choice onto Bedrock's
// ToolChoice union, downgrading to Auto (and reporting the downgrade so the
// caller can log it) when the target model family can't honor the request.
func toolChoiceToConverse(tc ir.ToolChoice, modelID string) (choice bedrocktypes.ToolChoice, downgraded bool) {
	capa := capabilityFor(modelID)
	switch tc.Kind {
	case ir.ToolChoiceRequired:
		if !capa.forceAny {
			return &bedrocktypes.ToolChoiceMemberAuto{}, true
		}
		return &bedrocktypes.ToolChoiceMemberAny{}, false
	case ir.ToolChoiceSpecific:
		if !capa.forceSpecific {
			return &bedrocktypes.ToolChoiceMemberAuto{}, true
		}
		return &bedrocktypes.ToolChoiceMemberTool{Value: bedrocktypes.SpecificToolChoice{Name: aws.String(tc.Name)}}, false
	case ir.ToolChoiceNone:
		// Converse has no explicit "none"; ToNative leaves
		// ToolConfig.ToolChoice unset when Kind == ToolChoiceNone (the
		// tools stay on the request), which Converse treats as Auto.
		return &bedrocktypes.ToolChoiceMemberAuto{}, false
	default:
		return &bedrocktypes.ToolChoiceMemberAuto{}, false
	}
}

// toolNameMap tracks the sanitized<->original tool name mapping for one
// conversion pass; Bedrock rejects names outside ^[a-zA-Z0-9_-]{1,64}$ but
// aggregator tool names carry "__" separators and provider prefixes.
type toolNameMap map[string]string

// ToNative converts a unified request into Converse system blocks, a
// message list, and (if tools are present) a ToolConfiguration, tracking
// the sanitized-name mapping the caller needs to restore original names
// from the response.
func ToNative(req *ir.Request, logger *zap.Logger) (system []bedrocktypes.SystemContentBlock, messages []bedrocktypes.Message, toolConfig *bedrocktypes.ToolConfiguration, names toolNameMap) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names = make(toolNameMap)
	if req.System != "" {
		system = append(system, &bedrocktypes.SystemContentBlockMemberText{Value: req.System})
	}

	var pendingResults []bedrocktypes.ContentBlock
	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleUser, Content: pendingResults})
			pendingResults = nil
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case ir.RoleSystem:
			continue
		case ir.RoleUser:
			flush()
			if blocks := contentBlocksFromContainer(m.Content); len(blocks) > 0 {
				messages = append(messages, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleUser, Content: blocks})
			}
		case ir.RoleAssistant:
			flush()
			var blocks []bedrocktypes.ContentBlock
			if !m.Content.IsEmpty() {
				blocks = append(blocks, contentBlocksFromContainer(m.Content)...)
			}
			for _, tc := range m.ToolCalls {
				sanitized := sanitizeToolName(tc.Name)
				names[sanitized] = tc.Name
				var input document.Interface
				if args, ok := tc.Arguments.AsValue(); ok {
					input = document.NewLazyDocument(args)
				} else {
					// Unparseable argument string: carry it forward verbatim
					// rather than dropping it.
					input = document.NewLazyDocument(tc.Arguments.String())
					logger.Debug("tool arguments are not valid JSON, sending as string",
						zap.String("tool", tc.Name))
				}
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberToolUse{
					Value: bedrocktypes.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(sanitized),
						Input:     input,
					},
				})
			}
			if len(blocks) > 0 {
				messages = append(messages, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleAssistant, Content: blocks})
			}
		case ir.RoleTool:
			pendingResults = append(pendingResults, toolResultBlock(m))
		}
	}
	flush()

	if len(req.Tools) > 0 {
		toolConfig = &bedrocktypes.ToolConfiguration{}
		for _, t := range req.Tools {
			sanitized := sanitizeToolName(t.Name)
			names[sanitized] = t.Name
			toolConfig.Tools = append(toolConfig.Tools, &bedrocktypes.ToolMemberToolSpec{
				Value: bedrocktypes.ToolSpecification{
					Name:        aws.String(sanitized),
					Description: aws.String(t.Description),
					InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaToMap(t.Parameters))},
				},
			})
		}
		if req.ToolChoice != nil && req.ToolChoice.Kind != ir.ToolChoiceNone {
			choice, downgraded := toolChoiceToConverse(*req.ToolChoice, req.Model)
			toolConfig.ToolChoice = choice
			if downgraded {
				logger.Warn("model family does not support the requested tool_choice, downgrading to auto",
					zap.String("model", req.Model),
					zap.String("tool_choice", string(req.ToolChoice.Kind)))
			}
		}
	}

	return system, messages, toolConfig, names
}

func toolResultBlock(m ir.UnifiedMessage) bedrocktypes.ContentBlock {
	text := m.Content.PlainText()
	isError := false
	if len(m.Content.Blocks) == 1 && m.Content.Blocks[0].Kind == ir.ContentToolResult {
		b := m.Content.Blocks[0]
		if b.ToolResultIsError != nil && *b.ToolResultIsError {
			isError = true
		}
	}
	if isError {
		text = "ERROR: " + text
	}

	var resultContent bedrocktypes.ToolResultContentBlock
	var decoded interface{}
	if json.Unmarshal([]byte(text), &decoded) == nil && !isError {
		resultContent = &bedrocktypes.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(decoded)}
	} else {
		resultContent = &bedrocktypes.ToolResultContentBlockMemberText{Value: text}
	}

	return &bedrocktypes.ContentBlockMemberToolResult{
		Value: bedrocktypes.ToolResultBlock{
			ToolUseId: aws.String(m.ToolCallID),
			Content:   []bedrocktypes.ToolResultContentBlock{resultContent},
		},
	}
}

func contentBlocksFromContainer(c ir.Container) []bedrocktypes.ContentBlock {
	var blocks []bedrocktypes.ContentBlock
	if c.Text != nil {
		if *c.Text != "" {
			blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: *c.Text})
		}
		return blocks
	}
	for _, b := range c.Blocks {
		switch b.Kind {
		case ir.ContentText:
			blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: b.Text})
		case ir.ContentImage:
			if b.Image != nil && b.Image.Data != "" {
				decoded, err := base64.StdEncoding.DecodeString(b.Image.Data)
				if err != nil {
					blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: ir.PlaceholderForUnsupportedImage})
					continue
				}
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberImage{
					Value: bedrocktypes.ImageBlock{
						Format: bedrocktypes.ImageFormat(strings.TrimPrefix(b.Image.MediaType, "image/")),
						Source: &bedrocktypes.ImageSourceMemberBytes{Value: decoded},
					},
				})
			} else {
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: ir.PlaceholderForUnsupportedImage})
			}
		}
	}
	return blocks
}

func schemaToMap(s *ir.JSONSchema) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	out := map[string]interface{}{"type": orDefault(s.Type, "object")}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
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
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// FromNativeResponse converts a Converse output message into the unified
// response shape, restoring original tool names via names (the inverse of
// the sanitize step in ToNative).
func FromNativeResponse(output *bedrockruntime.ConverseOutput, names toolNameMap) *ir.Response {
	out := &ir.Response{}
	if output.Usage != nil {
		out.Usage = ir.Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}

	msg := ir.UnifiedMessage{Role: ir.RoleAssistant}
	var textBlocks []ir.UnifiedContent
	if memberMsg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
		for _, block := range memberMsg.Value.Content {
			switch b := block.(type) {
			case *bedrocktypes.ContentBlockMemberText:
				textBlocks = append(textBlocks, ir.UnifiedContent{Kind: ir.ContentText, Text: b.Value})
			case *bedrocktypes.ContentBlockMemberToolUse:
				name := aws.ToString(b.Value.Name)
				if original, found := names[name]; found {
					name = original
				}
				raw, _ := documentToJSON(b.Value.Input)
				msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      name,
					Arguments: ir.UnifiedArguments{Form: ir.ArgumentsValue, Value: raw},
				})
			}
		}
	}
	if len(textBlocks) > 0 {
		msg.Content = ir.BlocksContainer(textBlocks...)
	} else {
		msg.Content = ir.TextContainer("")
	}

	out.Choices = []ir.Choice{{
		Index:        0,
		Message:      msg,
		FinishReason: finishReasonFromNative(output.StopReason),
	}}
	return out
}

// documentToJSON marshals a Bedrock document.Interface directly through
// encoding/json.
func documentToJSON(doc document.Interface) (json.RawMessage, error) {
	if doc == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{}`), err
	}
	return raw, nil
}

func finishReasonFromNative(r bedrocktypes.StopReason) *ir.FinishReason {
	switch r {
	case bedrocktypes.StopReasonEndTurn, bedrocktypes.StopReasonStopSequence:
		return &ir.FinishReason{Kind: ir.FinishStop}
	case bedrocktypes.StopReasonMaxTokens:
		return &ir.FinishReason{Kind: ir.FinishLength}
	case bedrocktypes.StopReasonToolUse:
		return &ir.FinishReason{Kind: ir.FinishToolCalls}
	case bedrocktypes.StopReasonContentFiltered, bedrocktypes.StopReasonGuardrailIntervened:
		return &ir.FinishReason{Kind: ir.FinishContentFilter}
	default:
		return &ir.FinishReason{Kind: ir.FinishOther, Other: string(r)}
	}
}
