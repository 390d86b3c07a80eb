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
	"context"
	"fmt"
	"io"
	"sync"
)

// StdioServerTransport is the server side of the newline-delimited stdio
// framing: it serves the gateway's own MCP surface when loomgate runs as a
// subprocess of a local MCP client (the mcp-stdio command). Messages
// arrive on the reader (normally os.Stdin) and responses leave on the
// writer (normally os.Stdout) — which is also why the stdio command logs
// to stderr only.
type StdioServerTransport struct {
	reader *bufio.Reader
	writer io.Writer

	mu     sync.Mutex // serializes writes; guards closed
	closed bool

	lines    chan stdioLine
	readOnce sync.Once
}

// NewStdioServerTransport wires a server transport over r and w. The
// reader goroutine starts lazily on the first Receive and persists for the
// transport's lifetime, so a Receive abandoned to context cancellation
// never strands a read.
func NewStdioServerTransport(r io.Reader, w io.Writer) *StdioServerTransport {
	return &StdioServerTransport{
		reader: bufio.NewReaderSize(r, 1024*1024),
		writer: w,
		lines:  make(chan stdioLine, 1),
	}
}

func (t *StdioServerTransport) startReader() {
	t.readOnce.Do(func() {
		go func() {
			defer close(t.lines)
			for {
				data, err := t.reader.ReadBytes('\n')
				if len(data) > 0 {
					t.lines <- stdioLine{data: trimLineEnding(data)}
				}
				if err != nil {
					if err != io.EOF {
						t.lines <- stdioLine{err: fmt.Errorf("reading stdin: %w", err)}
					}
					return
				}
			}
		}()
	})
}

// Send writes one framed response. Writes are serialized so concurrent
// handlers can't interleave frames on the shared writer.
func (t *StdioServerTransport) Send(_ context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport closed")
	}
	if _, err := t.writer.Write(append(message, '\n')); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

// Receive blocks for the next inbound frame. io.EOF means the parent
// process closed our stdin — the normal way an MCP client ends a stdio
// session.
func (t *StdioServerTransport) Receive(ctx context.Context) ([]byte, error) {
	t.startReader()

	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil, fmt.Errorf("transport closed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return nil, io.EOF
			}
			if line.err != nil {
				return nil, line.err
			}
			if len(line.data) == 0 {
				continue
			}
			return line.data, nil
		}
	}
}

// Close marks the transport closed. The underlying reader/writer are
// normally os.Stdin/os.Stdout and are left to the process's own teardown.
func (t *StdioServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
