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
package gemini

import (
	"encoding/json"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// ParseEvent converts one streamGenerateContent SSE "data:" payload — a
// full GenerateContentResponse rather than a partial delta, unlike OpenAI
// or Anthropic — into an IR chunk. mintID mints a fresh tool_use id for
// any function_call parts carried by this chunk.
func ParseEvent(data string, mintID func() string) (*ir.Chunk, error) {
	var resp GenerateContentResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, err
	}

	chunk := &ir.Chunk{}
	if resp.UsageMetadata.TotalTokenCount != 0 {
		chunk.Usage = &ir.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) == 0 {
		return chunk, nil
	}

	cand := resp.Candidates[0]
	chunk.Index = cand.Index
	callIdx := 0
	for _, p := range cand.Content.Parts {
		switch {
		case p.Text != "":
			chunk.Delta.Text += p.Text
		case p.FunctionCall != nil:
			raw, _ := json.Marshal(p.FunctionCall.Args)
			chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls,
				ir.ChunkDeltaToolCall{
					Index:   callIdx,
					IsStart: true,
					ID:      mintID(),
					Name:    p.FunctionCall.Name,
				},
				ir.ChunkDeltaToolCall{
					Index:             callIdx,
					ArgumentsFragment: string(raw),
				})
			callIdx++
		}
	}
	if cand.FinishReason != "" {
		chunk.FinishReason = finishReasonFromNative(cand.FinishReason)
	}
	return chunk, nil
}
