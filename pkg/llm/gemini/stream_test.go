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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

func mintSeq() func() string {
	n := 0
	return func() string {
		n++
		if n == 1 {
			return "call_1"
		}
		return "call_2"
	}
}

func TestParseEvent_TextChunk(t *testing.T) {
	data := `{"candidates":[{"index":0,"content":{"role":"model","parts":[{"text":"hello"}]}}]}`
	chunk, err := ParseEvent(data, mintSeq())
	require.NoError(t, err)
	assert.Equal(t, "hello", chunk.Delta.Text)
}

func TestParseEvent_FunctionCallChunk(t *testing.T) {
	data := `{"candidates":[{"index":0,"finishReason":"STOP","content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"Austin"}}}]}}]}`
	chunk, err := ParseEvent(data, mintSeq())
	require.NoError(t, err)
	require.Len(t, chunk.Delta.ToolCalls, 2)
	assert.True(t, chunk.Delta.ToolCalls[0].IsStart)
	assert.Equal(t, "call_1", chunk.Delta.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", chunk.Delta.ToolCalls[0].Name)
	assert.Contains(t, chunk.Delta.ToolCalls[1].ArgumentsFragment, "Austin")
	require.NotNil(t, chunk.FinishReason)
	assert.Equal(t, ir.FinishStop, chunk.FinishReason.Kind)
}

func TestParseEvent_UsageMetadata(t *testing.T) {
	data := `{"candidates":[{"index":0,"content":{"role":"model","parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`
	chunk, err := ParseEvent(data, mintSeq())
	require.NoError(t, err)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 5, chunk.Usage.TotalTokens)
}

func TestParseEvent_NoCandidates(t *testing.T) {
	data := `{"usageMetadata":{"totalTokenCount":1}}`
	chunk, err := ParseEvent(data, mintSeq())
	require.NoError(t, err)
	assert.Empty(t, chunk.Delta.Text)
	assert.Nil(t, chunk.FinishReason)
}
