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

import "github.com/teradata-labs/loomgate/pkg/ir"

// Event is one typed SSE event the HTTP surface writes to a client that
// requested the Anthropic protocol, regardless of which provider actually
// produced the underlying ir.Chunk stream.
type Event struct {
	Type string
	Data interface{}
}

// Encoder is the mirror of StreamState: it turns a stream of ir.Chunk into
// Anthropic's typed event sequence
// (message_start -> (content_block_start (content_block_delta)* content_block_stop)* ->
// message_delta -> message_stop), tracking which block index is open and
// whether it is text or tool_use, since the IR only carries an index per
// tool-call delta and implicitly index 0 for text.
type Encoder struct {
	id      string
	model   string
	started bool

	textOpen  bool
	toolOpen  map[int]bool
	lastBlock int // highest index opened, for final-close ordering
}

// NewEncoder creates a fresh Encoder for one streaming response.
func NewEncoder(id, model string) *Encoder {
	return &Encoder{id: id, model: model, toolOpen: make(map[int]bool), lastBlock: -1}
}

// Encode advances the encoder with one ir.Chunk and returns the Anthropic
// events it produces, in emission order.
func (e *Encoder) Encode(c *ir.Chunk) []Event {
	var events []Event

	if !e.started {
		e.started = true
		if c.ID != "" {
			e.id = c.ID
		}
		if c.Model != "" {
			e.model = c.Model
		}
		events = append(events, Event{Type: "message_start", Data: map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id":      e.id,
				"type":    "message",
				"role":    "assistant",
				"content": []interface{}{},
				"model":   e.model,
				"usage":   map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
			},
		}})
	}

	if c.Delta.Text != "" {
		if !e.textOpen {
			e.textOpen = true
			e.lastBlock = max(e.lastBlock, 0)
			events = append(events, Event{Type: "content_block_start", Data: map[string]interface{}{
				"type":  "content_block_start",
				"index": 0,
				"content_block": map[string]interface{}{
					"type": "text",
					"text": "",
				},
			}})
		}
		events = append(events, Event{Type: "content_block_delta", Data: map[string]interface{}{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": c.Delta.Text},
		}})
	}

	for _, tc := range c.Delta.ToolCalls {
		if tc.IsStart {
			e.toolOpen[tc.Index] = true
			e.lastBlock = max(e.lastBlock, tc.Index)
			events = append(events, Event{Type: "content_block_start", Data: map[string]interface{}{
				"type":  "content_block_start",
				"index": tc.Index,
				"content_block": map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": map[string]interface{}{},
				},
			}})
			continue
		}
		events = append(events, Event{Type: "content_block_delta", Data: map[string]interface{}{
			"type":  "content_block_delta",
			"index": tc.Index,
			"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": tc.ArgumentsFragment},
		}})
	}

	if c.FinishReason != nil {
		events = append(events, e.closeBlocks()...)

		deltaUsage := map[string]interface{}{"output_tokens": 0}
		if c.Usage != nil {
			deltaUsage["output_tokens"] = c.Usage.CompletionTokens
		}
		events = append(events, Event{Type: "message_delta", Data: map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]interface{}{"stop_reason": stopReasonToNative(c.FinishReason)},
			"usage": deltaUsage,
		}})
		events = append(events, Event{Type: "message_stop", Data: map[string]interface{}{"type": "message_stop"}})
	}

	return events
}

// closeBlocks emits content_block_stop for every block opened but not yet
// closed, in ascending index order.
func (e *Encoder) closeBlocks() []Event {
	var events []Event
	if e.textOpen {
		events = append(events, Event{Type: "content_block_stop", Data: map[string]interface{}{
			"type": "content_block_stop", "index": 0,
		}})
		e.textOpen = false
	}
	for idx := 0; idx <= e.lastBlock; idx++ {
		if e.toolOpen[idx] {
			events = append(events, Event{Type: "content_block_stop", Data: map[string]interface{}{
				"type": "content_block_stop", "index": idx,
			}})
			delete(e.toolOpen, idx)
		}
	}
	return events
}

// stopReasonToNative is the reverse of finishReasonFromNative, used when re-emitting a buffered/streamed response as
// Anthropic's wire shape regardless of the upstream that produced it.
func stopReasonToNative(fr *ir.FinishReason) string {
	switch fr.Kind {
	case ir.FinishStop:
		return "end_turn"
	case ir.FinishLength:
		return "max_tokens"
	case ir.FinishToolCalls:
		return "tool_use"
	case ir.FinishContentFilter:
		return "refusal"
	default:
		return fr.Other
	}
}
