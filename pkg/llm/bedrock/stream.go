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
package bedrock

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

type toolAccum struct {
	id      string
	name    string
	argsBuf strings.Builder
}

// StreamReader accumulates ConverseStream events into IR chunks, keyed by
// content-block index. Tool-use input arrives as a content_block_start
// plus a run of content_block_delta input fragments and is only surfaced
// once the block closes, since several Bedrock model families are known to
// emit malformed partial tool-input JSON mid-stream.
type StreamReader struct {
	names  toolNameMap
	active map[int32]*toolAccum
}

// NewStreamReader constructs a reader that restores original tool names
// via names, the sanitize-name mapping produced by ToNative.
func NewStreamReader(names toolNameMap) *StreamReader {
	return &StreamReader{names: names, active: make(map[int32]*toolAccum)}
}

// Feed converts one ConverseStream event into an IR chunk. Returns a nil
// chunk (no error) for events that don't produce client-visible output.
func (r *StreamReader) Feed(event bedrocktypes.ConverseStreamOutput) (*ir.Chunk, error) {
	switch e := event.(type) {
	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
		idx := aws.ToInt32(e.Value.ContentBlockIndex)
		start, ok := e.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse)
		if !ok {
			return nil, nil
		}
		name := aws.ToString(start.Value.Name)
		if original, found := r.names[name]; found {
			name = original
		}
		r.active[idx] = &toolAccum{id: aws.ToString(start.Value.ToolUseId), name: name}
		return &ir.Chunk{Delta: ir.ChunkDelta{ToolCalls: []ir.ChunkDeltaToolCall{
			{Index: int(idx), IsStart: true, ID: r.active[idx].id, Name: name},
		}}}, nil

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := aws.ToInt32(e.Value.ContentBlockIndex)
		switch delta := e.Value.Delta.(type) {
		case *bedrocktypes.ContentBlockDeltaMemberText:
			return &ir.Chunk{Delta: ir.ChunkDelta{Text: delta.Value}}, nil
		case *bedrocktypes.ContentBlockDeltaMemberToolUse:
			if delta.Value.Input != nil {
				if tb, ok := r.active[idx]; ok {
					tb.argsBuf.WriteString(*delta.Value.Input)
				}
			}
		}
		return nil, nil

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
		idx := aws.ToInt32(e.Value.ContentBlockIndex)
		tb, ok := r.active[idx]
		if !ok {
			return nil, nil
		}
		delete(r.active, idx)
		raw := json.RawMessage(`{}`)
		if tb.argsBuf.Len() > 0 {
			var parsed interface{}
			if json.Unmarshal([]byte(tb.argsBuf.String()), &parsed) == nil {
				raw, _ = json.Marshal(parsed)
			}
		}
		return &ir.Chunk{Delta: ir.ChunkDelta{ToolCalls: []ir.ChunkDeltaToolCall{
			{Index: int(idx), ArgumentsFragment: string(raw)},
		}}}, nil

	case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
		return &ir.Chunk{FinishReason: finishReasonFromNative(e.Value.StopReason)}, nil

	case *bedrocktypes.ConverseStreamOutputMemberMetadata:
		if e.Value.Usage == nil {
			return nil, nil
		}
		return &ir.Chunk{Usage: &ir.Usage{
			PromptTokens:     int(aws.ToInt32(e.Value.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(e.Value.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(e.Value.Usage.TotalTokens)),
		}}, nil

	default:
		return nil, nil
	}
}
