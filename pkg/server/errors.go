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
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
)

// errProviderNotWired signals the router resolved a provider key the
// gateway has no constructed client for — always a config-wiring defect,
// never something the caller did wrong, hence TransportError/503.
func errProviderNotWired(key string) error {
	return gatewayerr.New(gatewayerr.TransportError, "provider %q is routed to but was never constructed", key)
}

// writeOpenAIError shapes err as the OpenAI path does: an HTTP status code
// with a plain-text body.
func (g *Gateway) writeOpenAIError(w http.ResponseWriter, err error) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		gwErr = gatewayerr.Wrap(gatewayerr.UpstreamError, err, "unexpected error")
	}
	g.Logger.Warn("request failed", zap.String("kind", string(gwErr.Kind)), zap.Error(err))
	http.Error(w, gwErr.Error(), gwErr.HTTPStatus())
}

// anthropicErrorBody is the Anthropic error envelope shape:
// {type:"error", error:{type:<kind>, message:<text>}}.
type anthropicErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeAnthropicError shapes err as the Anthropic path does.
func (g *Gateway) writeAnthropicError(w http.ResponseWriter, err error) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		gwErr = gatewayerr.Wrap(gatewayerr.UpstreamError, err, "unexpected error")
	}
	g.Logger.Warn("request failed", zap.String("kind", string(gwErr.Kind)), zap.Error(err))

	body := anthropicErrorBody{Type: "error"}
	body.Error.Type = gwErr.AnthropicType()
	body.Error.Message = gwErr.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gwErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
