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
package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateToolArguments checks arguments against a tool's declared input
// schema before the call ever leaves the gateway — a schema violation is
// the caller's mistake, and rejecting it here spares the downstream a
// round trip. A tool with no schema accepts anything.
func ValidateToolArguments(tool Tool, arguments map[string]interface{}) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(tool.InputSchema),
		gojsonschema.NewGoLoader(arguments),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			reasons[i] = verr.String()
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(reasons, "; "))
	}
	return nil
}

// ValidateRequest checks the JSON-RPC envelope of an outbound request.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version %q (expected %s)", req.JSONRPC, JSONRPCVersion)
	}
	if req.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// ValidateResponse checks the JSON-RPC envelope of an inbound response:
// it must echo an id and carry exactly one of result or error.
func ValidateResponse(resp *Response) error {
	if resp.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version %q (expected %s)", resp.JSONRPC, JSONRPCVersion)
	}
	if resp.ID == nil {
		return fmt.Errorf("response ID is required")
	}
	if (len(resp.Result) > 0) == (resp.Error != nil) {
		return fmt.Errorf("response must carry exactly one of result or error")
	}
	return nil
}
