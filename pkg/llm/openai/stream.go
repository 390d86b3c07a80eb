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
package openai

import (
	"encoding/json"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// Done is the literal terminal SSE payload OpenAI sends instead of a JSON
// chunk.
const Done = "[DONE]"

// ParseEvent is a pure function from one SSE "data:" payload to an optional
// IR chunk. It never buffers across events — each OpenAI delta is
// self-contained — so callers simply feed it successive data lines. A
// payload of Done yields (nil, true) to signal the stream is finished.
func ParseEvent(data string) (chunk *ir.Chunk, done bool, err error) {
	if data == Done {
		return nil, true, nil
	}

	var native ChatCompletionStreamChunk
	if unmarshalErr := json.Unmarshal([]byte(data), &native); unmarshalErr != nil {
		return nil, false, unmarshalErr
	}

	out := &ir.Chunk{ID: native.ID, Model: native.Model}
	if native.Usage != nil {
		out.Usage = &ir.Usage{
			PromptTokens:     native.Usage.PromptTokens,
			CompletionTokens: native.Usage.CompletionTokens,
			TotalTokens:      native.Usage.TotalTokens,
		}
	}
	if len(native.Choices) == 0 {
		return out, false, nil
	}

	choice := native.Choices[0]
	out.Index = choice.Index
	if choice.Delta.Role != "" {
		out.Delta.Role = ir.Role(choice.Delta.Role)
	}
	if s, ok := choice.Delta.Content.(string); ok {
		out.Delta.Text = s
	}
	for _, tcd := range choice.Delta.ToolCalls {
		if tcd.ID != "" || tcd.Function.Name != "" {
			out.Delta.ToolCalls = append(out.Delta.ToolCalls, ir.ChunkDeltaToolCall{
				Index:   tcd.Index,
				IsStart: true,
				ID:      tcd.ID,
				Name:    tcd.Function.Name,
			})
			if tcd.Function.Arguments != "" {
				out.Delta.ToolCalls = append(out.Delta.ToolCalls, ir.ChunkDeltaToolCall{
					Index:             tcd.Index,
					ArgumentsFragment: tcd.Function.Arguments,
				})
			}
			continue
		}
		out.Delta.ToolCalls = append(out.Delta.ToolCalls, ir.ChunkDeltaToolCall{
			Index:             tcd.Index,
			ArgumentsFragment: tcd.Function.Arguments,
		})
	}
	if choice.FinishReason != "" {
		out.FinishReason = finishReasonFromNative(choice.FinishReason)
	}
	return out, false, nil
}

// WriteChunk renders an IR chunk back into OpenAI's streaming wire shape —
// used when the client requested the OpenAI protocol regardless of which
// upstream produced the chunk.
func WriteChunk(c *ir.Chunk) *ChatCompletionStreamChunk {
	out := &ChatCompletionStreamChunk{
		ID:     c.ID,
		Object: "chat.completion.chunk",
		Model:  c.Model,
	}
	delta := ChatMessageDelta{}
	if c.Delta.Role != "" {
		delta.Role = string(c.Delta.Role)
	}
	if c.Delta.Text != "" {
		delta.Content = c.Delta.Text
	}

	byIndex := map[int]*ToolCallDelta{}
	var order []int
	for _, tc := range c.Delta.ToolCalls {
		d, ok := byIndex[tc.Index]
		if !ok {
			d = &ToolCallDelta{Index: tc.Index, Type: "function"}
			byIndex[tc.Index] = d
			order = append(order, tc.Index)
		}
		if tc.IsStart {
			d.ID = tc.ID
			d.Function.Name = tc.Name
		}
		if tc.ArgumentsFragment != "" {
			d.Function.Arguments += tc.ArgumentsFragment
		}
	}
	for _, idx := range order {
		delta.ToolCalls = append(delta.ToolCalls, *byIndex[idx])
	}

	choice := ChatCompletionStreamChoice{Index: c.Index, Delta: delta}
	if c.FinishReason != nil {
		choice.FinishReason = finishReasonToNative(c.FinishReason)
	}
	out.Choices = []ChatCompletionStreamChoice{choice}
	if c.Usage != nil {
		out.Usage = &ChatCompletionUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	return out
}
