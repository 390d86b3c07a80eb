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
package server

import (
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/ratelimit"
)

// estimator is the process-wide token predictor backing rate-limit
// admission. The tiktoken encoding behind it loads once and is shared by
// every request handler.
var estimator = ratelimit.NewEstimator()

// predictedTokens estimates the input-token cost of req for the rate
// limiter's admission check, ahead of the actual upstream call.
func predictedTokens(req *ir.Request) int {
	return estimator.PredictInputTokens(req.Model, req)
}

// countTokensApprox backs the Anthropic count_tokens endpoint: character
// count of the system prompt and every message, divided by 4, floored
// at 1. No upstream call is made.
func countTokensApprox(req *ir.Request) int {
	text := req.System
	for _, m := range req.Messages {
		text += m.Content.PlainText()
	}
	return ratelimit.CharApproximation(text)
}
