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
package ratelimit

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teradata-labs/loomgate/pkg/ir"
)

// Estimator predicts a request's input-token count for rate-limit
// admission ahead of dispatch.
// It uses a single cl100k_base tiktoken encoding as a cross-provider
// approximation, falling back to a chars/4 approximation floored at 1
// if the encoding can't be loaded.
type Estimator struct {
	mu   sync.Mutex
	once bool
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns a ready-to-use Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// PredictInputTokens estimates the input-token count of req as it would
// be sent to model (an upstream-qualified id, e.g. "gpt-4o" or
// "claude-3-5-sonnet-20241022"). model is accepted for interface symmetry
// with the rest of the admission path but does not currently select a
// different encoding; see encoding() below.
func (e *Estimator) PredictInputTokens(model string, req *ir.Request) int {
	text := requestText(req)
	if enc := e.encoding(); enc != nil {
		return max1(len(enc.Encode(text, nil, nil)))
	}
	return CharApproximation(text)
}

// CharApproximation is the documented fallback: character count divided
// by 4, floored at 1.
func CharApproximation(text string) int {
	return max1(len(text) / 4)
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// encoding lazily loads and caches the cl100k_base encoding. A load
// failure is cached too, so a broken encoding data file only costs one
// failed lookup per process lifetime rather than one per request.
func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.once {
		return e.enc
	}
	e.once = true

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	e.enc = enc
	return e.enc
}

func requestText(req *ir.Request) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteString(m.Content.PlainText())
		for _, tc := range m.ToolCalls {
			b.WriteString(tc.Name)
			b.WriteString(tc.Arguments.String())
		}
	}
	for _, tool := range req.Tools {
		b.WriteString(tool.Name)
		b.WriteString(tool.Description)
	}
	return b.String()
}
