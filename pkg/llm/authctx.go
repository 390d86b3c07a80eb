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
package llm

import "context"

type forwardedTokenKey struct{}

// WithForwardedToken attaches the inbound client's raw Authorization
// header value to ctx, for providers configured with forward_token=true.
// The override is per-call: it never mutates the client's own configured
// credential, and it is read by exactly the adapter dispatching this one
// request.
func WithForwardedToken(ctx context.Context, authorization string) context.Context {
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, forwardedTokenKey{}, authorization)
}

// ForwardedToken reads a forwarded Authorization header previously
// attached with WithForwardedToken, if any.
func ForwardedToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(forwardedTokenKey{}).(string)
	return v, ok && v != ""
}

type extraHeadersKey struct{}

// WithExtraHeaders attaches per-model header rules to ctx, applied by the
// dispatching adapter after its own defaults so an explicit model entry
// can override them. Bedrock never sees these; its provider entries reject
// custom headers at validation time.
func WithExtraHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, extraHeadersKey{}, headers)
}

// ExtraHeaders reads header rules previously attached with
// WithExtraHeaders, if any.
func ExtraHeaders(ctx context.Context) map[string]string {
	v, _ := ctx.Value(extraHeadersKey{}).(map[string]string)
	return v
}
