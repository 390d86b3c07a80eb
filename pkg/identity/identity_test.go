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
package identity

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
)

func TestExtract_HeaderSources(t *testing.T) {
	e := NewExtractor(Config{
		ClientID: Source{Kind: SourceHTTPHeader, Name: "X-Client-Id"},
		GroupID:  &Source{Kind: SourceHTTPHeader, Name: "X-Client-Group"},
	})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Client-Id", "acme-corp")
	r.Header.Set("X-Client-Group", "basic")

	id, err := e.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{ClientID: "acme-corp", GroupID: "basic"}, id)
}

func TestExtract_MissingClientID(t *testing.T) {
	e := NewExtractor(Config{ClientID: Source{Kind: SourceHTTPHeader, Name: "X-Client-Id"}})
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	_, err := e.Extract(r)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.AuthenticationFailed, gwErr.Kind)
}

func TestExtract_GroupNotInAllowlistRejected(t *testing.T) {
	e := NewExtractor(Config{
		ClientID:    Source{Kind: SourceHTTPHeader, Name: "X-Client-Id"},
		GroupID:     &Source{Kind: SourceHTTPHeader, Name: "X-Client-Group"},
		GroupValues: []string{"basic", "premium"},
	})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Client-Id", "acme-corp")
	r.Header.Set("X-Client-Group", "enterprise")

	_, err := e.Extract(r)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.Forbidden, gwErr.Kind)
}

func TestExtract_JWTClaim(t *testing.T) {
	e := NewExtractor(Config{
		ClientID: Source{Kind: SourceJWTClaim, Name: "sub"},
		GroupID:  &Source{Kind: SourceJWTClaim, Name: "group"},
	})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer "+fakeJWT(t, map[string]interface{}{
		"sub": "user-123", "group": "premium",
	}))

	id, err := e.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{ClientID: "user-123", GroupID: "premium"}, id)
}

func TestExtract_MalformedBearerToken(t *testing.T) {
	e := NewExtractor(Config{ClientID: Source{Kind: SourceJWTClaim, Name: "sub"}})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	_, err := e.Extract(r)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.AuthenticationFailed, gwErr.Kind)
}

func fakeJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payloadBytes, err := json.Marshal(claims)
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return header + "." + payload + ".sig"
}
