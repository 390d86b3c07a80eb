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
	"bufio"
	"io"
	"strings"
)

// SSEParser incrementally decodes the text/event-stream body a
// streamable-HTTP downstream answers with. Only the fields the gateway
// needs survive parsing: the event id (fed to StreamResumption) and the
// data payload (a JSON-RPC frame). Comments, keep-alives, and event-type
// lines are skipped.
type SSEParser struct {
	reader *bufio.Reader
}

// NewSSEParser wraps r, normally an HTTP response body.
func NewSSEParser(r io.Reader) *SSEParser {
	return &SSEParser{reader: bufio.NewReader(r)}
}

// ParseEvent blocks for the next complete event. A blank line terminates
// an event; multiple data: lines concatenate with newlines per the SSE
// format. Returns io.EOF once the stream closes — except when it closes
// mid-event with data already collected, in which case that partial event
// is returned first so nothing the downstream sent is dropped.
func (p *SSEParser) ParseEvent() (*SSEEvent, error) {
	var id string
	var data []string

	flush := func() *SSEEvent {
		return &SSEEvent{ID: id, Data: []byte(strings.Join(data, "\n"))}
	}

	for {
		raw, err := p.reader.ReadString('\n')

		if line := strings.TrimRight(raw, "\r\n"); line != "" {
			accumulateSSEField(line, &id, &data)
		} else if raw != "" && len(data) > 0 {
			// A bare newline terminates the event in flight.
			return flush(), nil
		}

		if err != nil {
			if err == io.EOF && len(data) > 0 {
				return flush(), nil
			}
			return nil, err
		}
	}
}

// accumulateSSEField folds one non-blank SSE line into the event being
// assembled, ignoring comments and fields the gateway has no use for.
func accumulateSSEField(line string, id *string, data *[]string) {
	if strings.HasPrefix(line, ":") {
		return // comment / keep-alive
	}
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "id":
		*id = value
	case "data":
		*data = append(*data, value)
	}
}

// ParseAll drains the stream, returning every event up to EOF. Used by
// tests and by callers that buffer a whole response body before decoding.
func (p *SSEParser) ParseAll() ([]SSEEvent, error) {
	var events []SSEEvent
	for {
		event, err := p.ParseEvent()
		if err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, *event)
	}
}
