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

import "sync"

// SSEEvent is one Server-Sent Event as received from a streamable-HTTP
// downstream: the event id (for resumption) plus the JSON-RPC payload.
type SSEEvent struct {
	ID   string
	Data []byte
}

// defaultResumptionBuffer bounds how many recent events are retained for
// replay after a dropped stream.
const defaultResumptionBuffer = 100

// StreamResumption remembers the most recent events and the last event id
// seen on a streamable-HTTP stream, so a reconnect can send
// Last-Event-ID and replay what the downstream re-delivers. The buffer is
// a fixed-size ring: old events fall off the back, and a resumption point
// older than the buffer simply yields no replay.
type StreamResumption struct {
	mu          sync.RWMutex
	lastEventID string
	events      []SSEEvent // ring storage, len == capacity once full
	next        int        // index the next event lands at
	full        bool
}

// NewStreamResumption creates a resumption buffer holding up to bufferSize
// events; a non-positive size gets the default.
func NewStreamResumption(bufferSize int) *StreamResumption {
	if bufferSize <= 0 {
		bufferSize = defaultResumptionBuffer
	}
	return &StreamResumption{events: make([]SSEEvent, bufferSize)}
}

// UpdateLastEventID records the id of the latest event observed, without
// buffering a payload — used for events the caller consumed directly.
func (s *StreamResumption) UpdateLastEventID(id string) {
	s.mu.Lock()
	s.lastEventID = id
	s.mu.Unlock()
}

// GetLastEventID returns the id to present as Last-Event-ID on reconnect.
func (s *StreamResumption) GetLastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEventID
}

// AddEvent buffers one event and advances the last-seen id.
func (s *StreamResumption) AddEvent(event SSEEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.next] = event
	s.next++
	if s.next == len(s.events) {
		s.next = 0
		s.full = true
	}
	s.lastEventID = event.ID
}

// GetEventsAfter returns the buffered events that arrived after the event
// with the given id, oldest first. If the id is no longer (or never was)
// in the buffer there is nothing trustworthy to replay, and nil is
// returned.
func (s *StreamResumption) GetEventsAfter(afterEventID string) []SSEEvent {
	if afterEventID == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.orderedLocked()
	for i, ev := range ordered {
		if ev.ID == afterEventID {
			tail := ordered[i+1:]
			if len(tail) == 0 {
				return nil
			}
			out := make([]SSEEvent, len(tail))
			copy(out, tail)
			return out
		}
	}
	return nil
}

// orderedLocked flattens the ring into oldest-first order. Caller holds at
// least a read lock.
func (s *StreamResumption) orderedLocked() []SSEEvent {
	if !s.full {
		return s.events[:s.next]
	}
	out := make([]SSEEvent, 0, len(s.events))
	out = append(out, s.events[s.next:]...)
	out = append(out, s.events[:s.next]...)
	return out
}

// Clear drops the buffer and the last event id, e.g. when a session is
// torn down and resumption would replay into the wrong stream.
func (s *StreamResumption) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEventID = ""
	s.events = make([]SSEEvent, len(s.events))
	s.next = 0
	s.full = false
}
