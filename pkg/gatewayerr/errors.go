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

// Package gatewayerr defines the canonical error kinds the gateway raises
// and the mapping from those kinds to HTTP status codes and MCP JSON-RPC
// error codes. Adapters and the aggregator raise *Error and let it bubble
// up unchanged; only the HTTP surface inspects Kind to shape a response.
package gatewayerr

import "fmt"

// Kind is one of the canonical error kinds from the gateway design.
type Kind string

const (
	// InvalidRequest is a schema violation or semantic inconsistency, e.g.
	// a duplicate tool_use id or a missing tool_result.
	InvalidRequest Kind = "invalid_request"
	// AuthenticationFailed is a missing/invalid credential at upstream or downstream.
	AuthenticationFailed Kind = "authentication_failed"
	// RateLimitExceeded is a token-bucket admission denial.
	RateLimitExceeded Kind = "rate_limit_exceeded"
	// ModelNotFound means no provider claims the requested model.
	ModelNotFound Kind = "model_not_found"
	// UpstreamError is a non-2xx response from a provider; carries an UpstreamKind.
	UpstreamError Kind = "upstream_error"
	// TransportError is a socket or child-process failure.
	TransportError Kind = "transport_error"
	// Forbidden is an RBAC denial (LLM side) or a configuration rejection.
	Forbidden Kind = "forbidden"
	// NotFound covers MCP execute of an invisible tool, indistinguishable
	// from a genuinely absent tool so restricted tools never leak.
	NotFound Kind = "not_found"
)

// UpstreamKind classifies the upstream failure behind an UpstreamError, for
// the status-code mapping table below.
type UpstreamKind string

const (
	UpstreamAuth         UpstreamKind = "auth"
	UpstreamModelMissing UpstreamKind = "model_not_found"
	UpstreamRateLimit    UpstreamKind = "rate_limit"
	UpstreamQuota        UpstreamKind = "quota"
	UpstreamBadRequest   UpstreamKind = "bad_request"
	UpstreamInternal     UpstreamKind = "internal"
	UpstreamUnavailable  UpstreamKind = "unavailable"
)

// Error is the gateway's canonical error type. It wraps an underlying cause
// (optional) and carries enough structure for the HTTP surface to shape a
// protocol-appropriate response without re-parsing message text.
type Error struct {
	Kind     Kind
	Upstream UpstreamKind // only meaningful when Kind == UpstreamError
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind, preserving cause for %w unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Upstream creates an UpstreamError with the given upstream classification.
func Upstream(kind UpstreamKind, format string, args ...interface{}) *Error {
	return &Error{Kind: UpstreamError, Upstream: kind, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error's Kind (and Upstream classification, if any) to
// the HTTP status code a client should see.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case InvalidRequest:
		return 400
	case AuthenticationFailed:
		return 401
	case RateLimitExceeded:
		return 429
	case ModelNotFound:
		return 404
	case Forbidden:
		return 403
	case NotFound:
		return 404
	case TransportError:
		return 503
	case UpstreamError:
		switch e.Upstream {
		case UpstreamAuth:
			return 401
		case UpstreamModelMissing:
			return 404
		case UpstreamRateLimit:
			return 429
		case UpstreamQuota:
			return 403
		case UpstreamBadRequest:
			return 400
		case UpstreamInternal:
			return 500
		case UpstreamUnavailable:
			return 503
		default:
			return 502
		}
	default:
		return 500
	}
}

// AnthropicType maps Kind to the Anthropic error-shape "type" field, e.g.
// "invalid_request_error", "authentication_error".
func (e *Error) AnthropicType() string {
	switch e.Kind {
	case InvalidRequest:
		return "invalid_request_error"
	case AuthenticationFailed:
		return "authentication_error"
	case RateLimitExceeded:
		return "rate_limit_error"
	case ModelNotFound:
		return "not_found_error"
	case Forbidden:
		return "permission_error"
	case NotFound:
		return "not_found_error"
	case TransportError:
		return "api_error"
	case UpstreamError:
		if e.Upstream == UpstreamAuth {
			return "authentication_error"
		}
		if e.Upstream == UpstreamRateLimit {
			return "rate_limit_error"
		}
		return "api_error"
	default:
		return "api_error"
	}
}

// As reports whether err (or something it wraps) is a *Error, returning it.
func As(err error) (*Error, bool) {
	var target *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return target, false
}

// MCP JSON-RPC reserved error codes.
const (
	MCPMethodNotFound = -32601
	MCPInternalError  = -32603
)

// MCPCode maps Kind to an MCP JSON-RPC error code. NotFound (both a
// genuinely absent tool and an RBAC-invisible one) and Forbidden both
// surface as MethodNotFound so existence of restricted tools is never
// leaked.
func (e *Error) MCPCode() int {
	switch e.Kind {
	case NotFound, Forbidden:
		return MCPMethodNotFound
	default:
		return MCPInternalError
	}
}
