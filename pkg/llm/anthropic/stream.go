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
package anthropic

import (
	"encoding/json"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
)

// blockKind tracks what a content-block index was opened as, since
// Anthropic's delta events don't repeat the block type.
type blockKind int

const (
	blockText blockKind = iota
	blockToolUse
)

// StreamState is the per-request typed-event state machine: message_start
// -> (content_block_start/delta/stop)* -> message_delta -> message_stop.
// Unlike OpenAI's stateless parser it must
// remember which content-block index is text vs. tool_use, because a
// content_block_delta event doesn't repeat the block's type.
type StreamState struct {
	id          string
	model       string
	inputTokens int
	kinds       map[int]blockKind
}

// NewStreamState creates a fresh state machine for one streaming request.
func NewStreamState() *StreamState {
	return &StreamState{kinds: make(map[int]blockKind)}
}

// Feed advances the state machine with one SSE event (its "event:" line and
// "data:" JSON payload) and returns the IR chunk it produces, if any. A
// "ping" event or a block_stop event with no content yields (nil, nil).
func (s *StreamState) Feed(eventType string, data string) (*ir.Chunk, error) {
	switch eventType {
	case "ping":
		return nil, nil
	case "error":
		var ev ErrorEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "decoding anthropic error event")
		}
		return nil, gatewayerr.Upstream(gatewayerr.UpstreamInternal, "anthropic: %s", ev.Error.Message)
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "decoding anthropic stream event")
	}

	switch eventType {
	case "message_start":
		if event.Message != nil {
			s.id = event.Message.ID
			s.model = event.Message.Model
			if event.Message.Usage != nil {
				s.inputTokens = event.Message.Usage.InputTokens
			}
		}
		return &ir.Chunk{
			ID:    s.id,
			Model: s.model,
			Delta: ir.ChunkDelta{Role: ir.RoleAssistant},
		}, nil

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil, nil
		}
		idx := event.Index
		switch event.ContentBlock.Type {
		case "tool_use":
			s.kinds[idx] = blockToolUse
			return &ir.Chunk{
				ID:    s.id,
				Model: s.model,
				Delta: ir.ChunkDelta{
					ToolCalls: []ir.ChunkDeltaToolCall{{
						Index:   idx,
						IsStart: true,
						ID:      event.ContentBlock.ID,
						Name:    event.ContentBlock.Name,
					}},
				},
			}, nil
		default:
			s.kinds[idx] = blockText
			return nil, nil
		}

	case "content_block_delta":
		if event.Delta == nil {
			return nil, nil
		}
		idx := event.Index
		switch s.kinds[idx] {
		case blockToolUse:
			if event.Delta.PartialJSON == "" {
				return nil, nil
			}
			return &ir.Chunk{
				ID:    s.id,
				Model: s.model,
				Delta: ir.ChunkDelta{
					ToolCalls: []ir.ChunkDeltaToolCall{{
						Index:             idx,
						ArgumentsFragment: event.Delta.PartialJSON,
					}},
				},
			}, nil
		default:
			if event.Delta.Text == "" {
				return nil, nil
			}
			return &ir.Chunk{ID: s.id, Model: s.model, Delta: ir.ChunkDelta{Text: event.Delta.Text}}, nil
		}

	case "content_block_stop":
		return nil, nil

	case "message_delta":
		out := &ir.Chunk{ID: s.id, Model: s.model}
		if event.Delta != nil && event.Delta.StopReason != "" {
			out.FinishReason = finishReasonFromNative(event.Delta.StopReason)
		}
		if event.Usage != nil {
			// input_tokens arrives on message_start; message_delta usually
			// carries output_tokens only.
			prompt := event.Usage.InputTokens
			if prompt == 0 {
				prompt = s.inputTokens
			}
			out.Usage = &ir.Usage{
				PromptTokens:     prompt,
				CompletionTokens: event.Usage.OutputTokens,
				TotalTokens:      prompt + event.Usage.OutputTokens,
			}
		}
		return out, nil

	case "message_stop":
		return nil, nil

	default:
		return nil, nil
	}
}
