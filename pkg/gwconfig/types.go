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

// Package gwconfig defines the gateway's typed configuration structs and
// the cross-invariant validator that gates startup. TOML
// loading and `${ENV}` / `{{ env.NAME }}` expansion are delegated to
// viper/afero/fsnotify upstream of Unmarshal — this package only owns the
// shapes those tools populate.
package gwconfig

import "time"

// ProviderKind is one of the four LLM vendors the gateway can route to.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGoogle    ProviderKind = "google"
	ProviderBedrock   ProviderKind = "bedrock"
)

// HeaderRule is one header to attach (or override) on requests for a
// specific explicit model entry.
type HeaderRule struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// Window is one token-bucket limit: an input-token budget replenished
// every Interval.
type Window struct {
	InputTokenLimit int           `mapstructure:"input_token_limit"`
	Interval        time.Duration `mapstructure:"interval"`
}

// TokenRateLimits is one level (model or provider) of the rate-limit
// precedence tree: an optional default window plus optional per-group
// overrides.
type TokenRateLimits struct {
	Default *Window           `mapstructure:"default"`
	Groups  map[string]Window `mapstructure:"groups"`
}

// ModelEntry is an explicit per-model override under a provider: a rename
// to the upstream model id, per-model rate limits, and headers to attach.
type ModelEntry struct {
	Rename     string           `mapstructure:"rename"`
	RateLimits *TokenRateLimits `mapstructure:"rate_limits"`
	Headers    []HeaderRule     `mapstructure:"headers"`
}

// AWSCredentials carries the subset of Bedrock credential shapes the
// gateway accepts; SigV4 signing itself is delegated to the AWS SDK.
type AWSCredentials struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// ProviderConfig is one `[llm.providers.<key>]` entry.
type ProviderConfig struct {
	Enabled      bool                  `mapstructure:"enabled"`
	Kind         ProviderKind          `mapstructure:"type"`
	APIKey       string                `mapstructure:"api_key"`
	AWS          AWSCredentials        `mapstructure:"aws"`
	BaseURL      string                `mapstructure:"base_url"`
	ForwardToken bool                  `mapstructure:"forward_token"`
	ModelFilter  string                `mapstructure:"model_filter"`
	Models       map[string]ModelEntry `mapstructure:"models"`
	RateLimits   *TokenRateLimits      `mapstructure:"rate_limits"`
}

// ProtocolConfig is one `[llm.protocols.<name>]` entry — a client-facing
// wire format served at Path, independent of which upstream provider
// ultimately handles a given request.
type ProtocolConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMConfig is the `[llm]` config tree.
type LLMConfig struct {
	// ProviderOrder preserves the insertion order providers were declared
	// in, since auto-routing iterates providers in that order.
	ProviderOrder []string
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
	Protocols     map[string]ProtocolConfig `mapstructure:"protocols"`
}

// IdentitySourceKind mirrors pkg/identity.SourceKind in config-string form.
type IdentitySourceKind string

const (
	IdentitySourceHTTPHeader IdentitySourceKind = "http_header"
	IdentitySourceJWTClaim   IdentitySourceKind = "jwt_claim"
)

// IdentitySourceConfig is one `{http_header | jwt_claim}` source selector.
type IdentitySourceConfig struct {
	Kind IdentitySourceKind `mapstructure:"kind"`
	Name string             `mapstructure:"name"`
}

// ClientIdentificationConfig is `[server.client_identification]`.
type ClientIdentificationConfig struct {
	Enabled     bool                  `mapstructure:"enabled"`
	ClientID    IdentitySourceConfig  `mapstructure:"client_id"`
	GroupID     *IdentitySourceConfig `mapstructure:"group_id"`
	GroupValues []string              `mapstructure:"group_values"`
}

// ServerConfig is the `[server]` config tree.
type ServerConfig struct {
	ClientIdentification ClientIdentificationConfig `mapstructure:"client_identification"`
}

// ToolAccessConfig overrides RBAC visibility for one tool under a
// downstream MCP server. A tool-level Allow/Deny fully
// overrides the server-level fields for that tool.
type ToolAccessConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// DownstreamAuthKind selects how the gateway authenticates to a
// downstream MCP server.
type DownstreamAuthKind string

const (
	DownstreamAuthNone          DownstreamAuthKind = ""
	DownstreamAuthStatic        DownstreamAuthKind = "static"
	DownstreamAuthForwardBearer DownstreamAuthKind = "forward_bearer"
)

// DownstreamAuthConfig is one downstream server's `auth` block.
type DownstreamAuthConfig struct {
	Kind   DownstreamAuthKind `mapstructure:"kind"`
	Static string             `mapstructure:"static_token"`
}

// MCPServerConfig is one `[mcp.servers.<name>]` entry: transport plus RBAC.
type MCPServerConfig struct {
	Enabled   bool                        `mapstructure:"enabled"`
	Transport string                      `mapstructure:"transport"` // "stdio" | "sse" | "streamable_http"
	Command   string                      `mapstructure:"command"`
	Args      []string                    `mapstructure:"args"`
	Env       map[string]string           `mapstructure:"env"`
	Stderr    string                      `mapstructure:"stderr"` // "" (drop) | "log" | file path
	URL       string                      `mapstructure:"url"`
	Auth      DownstreamAuthConfig        `mapstructure:"auth"`
	Allow     []string                    `mapstructure:"allow"`
	Deny      []string                    `mapstructure:"deny"`
	Tools     map[string]ToolAccessConfig `mapstructure:"tools"`
	Timeout   string                      `mapstructure:"timeout"`
}

// MCPConfig is the `[mcp]` config tree.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `mapstructure:"servers"`
}

// Config is the gateway's fully-typed, post-expansion configuration.
type Config struct {
	LLM    LLMConfig    `mapstructure:"llm"`
	MCP    MCPConfig    `mapstructure:"mcp"`
	Server ServerConfig `mapstructure:"server"`
}
