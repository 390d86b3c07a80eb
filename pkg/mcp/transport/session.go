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

import (
	"fmt"
	"sync"
)

// SessionManager tracks the Mcp-Session-Id a streamable-HTTP downstream
// assigned to this connection. The id is echoed on every subsequent
// request so the downstream can correlate the gateway's calls; losing or
// corrupting it would silently fork the session.
type SessionManager struct {
	mu        sync.RWMutex
	sessionID string
}

// NewSessionManager returns a manager with no session established.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// SetSessionID stores the id a downstream handed back. Ids must consist of
// visible ASCII only (0x21–0x7E per the MCP spec) — a downstream that
// sends anything else is emitting a header we could not echo faithfully,
// so it is rejected rather than stored mangled.
func (s *SessionManager) SetSessionID(id string) error {
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7E {
			return fmt.Errorf("invalid session ID: byte %#x at position %d is outside visible ASCII", id[i], i)
		}
	}

	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
	return nil
}

// GetSessionID returns the current session id, empty if none established.
func (s *SessionManager) GetSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// HasSession reports whether a downstream has assigned a session id.
func (s *SessionManager) HasSession() bool {
	return s.GetSessionID() != ""
}

// ClearSession forgets the session id, e.g. before a re-initialize after
// the downstream answered 404 for a stale session.
func (s *SessionManager) ClearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}
