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
package gwconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv_CurlyBraceForm(t *testing.T) {
	t.Setenv("LOOMGATE_TEST_KEY", "sk-abc123")
	assert.Equal(t, `api_key = "sk-abc123"`, ExpandEnv(`api_key = "${LOOMGATE_TEST_KEY}"`))
}

func TestExpandEnv_TemplateForm(t *testing.T) {
	t.Setenv("LOOMGATE_TEST_KEY", "sk-abc123")
	assert.Equal(t, `api_key = "sk-abc123"`, ExpandEnv(`api_key = "{{ env.LOOMGATE_TEST_KEY }}"`))
}

func TestExpandEnv_UnsetVariableExpandsEmpty(t *testing.T) {
	require.NoError(t, os.Unsetenv("LOOMGATE_TEST_MISSING"))
	assert.Equal(t, `api_key = ""`, ExpandEnv(`api_key = "${LOOMGATE_TEST_MISSING}"`))
}

func TestExpandEnv_NoInterpolationIsUntouched(t *testing.T) {
	assert.Equal(t, `plain = "value"`, ExpandEnv(`plain = "value"`))
}

const sampleTOML = `
[server.client_identification]
enabled = true

[server.client_identification.client_id]
kind = "http_header"
name = "X-Client-Id"

[llm.providers.openai]
enabled = true
type = "openai"
api_key = "${LOOMGATE_TEST_KEY}"

[llm.providers.anthropic]
enabled = true
type = "anthropic"
api_key = "static-token"

[llm.protocols.openai]
enabled = true
path = "/v1/chat/completions"
`

func TestLoader_Load_ExpandsAndUnmarshals(t *testing.T) {
	t.Setenv("LOOMGATE_TEST_KEY", "sk-from-env")

	dir := t.TempDir()
	path := dir + "/loomgate.toml"
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))

	loader := NewLoader(nil)
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	require.Contains(t, cfg.LLM.Providers, "openai")
	assert.Equal(t, "sk-from-env", cfg.LLM.Providers["openai"].APIKey)
	assert.Equal(t, "static-token", cfg.LLM.Providers["anthropic"].APIKey)
	assert.True(t, cfg.Server.ClientIdentification.Enabled)
}

func TestLoader_Load_PreservesProviderDeclarationOrder(t *testing.T) {
	t.Setenv("LOOMGATE_TEST_KEY", "sk-from-env")

	dir := t.TempDir()
	path := dir + "/loomgate.toml"
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))

	loader := NewLoader(nil)
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	// "openai" is declared before "anthropic" in the document; map
	// iteration alone would not guarantee that.
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.LLM.ProviderOrder)
}

func TestProviderOrderFromText_IgnoresModelSubtables(t *testing.T) {
	raw := `
[llm.providers.zeta]
type = "openai"
[llm.providers.zeta.models.gpt-4o]
rename = "gpt-4o-2024-11-20"
[llm.providers.alpha]
type = "anthropic"
`
	providers := map[string]ProviderConfig{"zeta": {}, "alpha": {}}
	assert.Equal(t, []string{"zeta", "alpha"}, providerOrderFromText(raw, providers))
}

func TestLoader_Load_MissingFile(t *testing.T) {
	loader := NewLoader(nil)
	_, err := loader.Load("/nonexistent/loomgate.toml")
	assert.Error(t, err)
}
