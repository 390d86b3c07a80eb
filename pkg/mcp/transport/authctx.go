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
package transport

import "context"

type bearerOverrideKey struct{}

// WithBearerOverride attaches the inbound client's raw Authorization
// header value to ctx, for downstreams configured with
// auth.kind=forward_bearer. The override
// is per-call: it never mutates the transport's own configured static
// headers, and it propagates to that one downstream only.
func WithBearerOverride(ctx context.Context, authorization string) context.Context {
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerOverrideKey{}, authorization)
}

// bearerOverride reads a forwarded Authorization header previously
// attached with WithBearerOverride, if any.
func bearerOverride(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(bearerOverrideKey{}).(string)
	return v, ok && v != ""
}
