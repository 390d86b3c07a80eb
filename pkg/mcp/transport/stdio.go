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
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stdio close grace: after stdin closes, the child gets this long to exit
// on its own before it is killed.
const stdioShutdownGrace = 5 * time.Second

// StderrSink selects where a stdio downstream's stderr goes. The default
// drops it — well-behaved MCP servers log to their own files — but an
// operator debugging a misbehaving downstream can route it into the
// gateway's log or to a file.
type StderrSink string

const (
	StderrDiscard StderrSink = ""    // drop stderr output
	StderrLog     StderrSink = "log" // one gateway log line per stderr line
	// any other value is treated as a file path to append to
)

// StdioTransport runs a downstream MCP server as a child process and
// frames JSON-RPC messages as newline-delimited JSON on its stdin/stdout.
// The child is owned exclusively by this transport: requests reach it only
// through Send/Receive, and a child that exits fails every in-flight
// Receive rather than hanging it.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	// lines carries framed stdout lines from the single reader goroutine;
	// it closes when the child's stdout does, which is how process exit
	// propagates to pending calls.
	lines chan stdioLine

	mu     sync.Mutex
	closed bool
}

type stdioLine struct {
	data []byte
	err  error
}

// StdioConfig configures a stdio downstream.
type StdioConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	Stderr  StderrSink
	Logger  *zap.Logger
}

// NewStdioTransport spawns the configured child and wires its pipes. A
// child that fails to launch returns an error here; the manager treats
// that as this downstream contributing zero tools, never as a startup
// failure for the gateway.
func NewStdioTransport(config StdioConfig) (*StdioTransport, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	// #nosec G204 -- the argv comes from the operator's own config file
	cmd := exec.Command(config.Command, config.Args...)
	if config.Dir != "" {
		cmd.Dir = config.Dir
	}
	cmd.Env = os.Environ()
	for k, v := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("starting %s: %w", config.Command, err)
	}

	t := &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		logger: config.Logger,
		lines:  make(chan stdioLine, 1),
	}

	go t.readStdout(stdout)
	go t.drainStderr(stderr, config.Stderr)

	config.Logger.Info("stdio downstream started",
		zap.String("command", config.Command),
		zap.Strings("args", config.Args),
		zap.Int("pid", cmd.Process.Pid),
	)
	return t, nil
}

// readStdout is the transport's single stdout reader: one goroutine for
// the child's lifetime, so a Receive abandoned by context cancellation
// never strands a read. bufio.Reader rather than Scanner — responses can
// be arbitrarily large.
func (t *StdioTransport) readStdout(stdout io.Reader) {
	defer close(t.lines)
	reader := bufio.NewReader(stdout)
	for {
		data, err := reader.ReadBytes('\n')
		if len(data) > 0 {
			t.lines <- stdioLine{data: trimLineEnding(data)}
		}
		if err != nil {
			if err != io.EOF {
				t.lines <- stdioLine{err: fmt.Errorf("reading stdout: %w", err)}
			}
			return
		}
	}
}

// drainStderr consumes the child's stderr into the configured sink. The
// pipe must be drained regardless of sink, or a chatty child blocks on a
// full pipe buffer.
func (t *StdioTransport) drainStderr(stderr io.Reader, sink StderrSink) {
	var file *os.File
	switch sink {
	case StderrDiscard, StderrLog:
	default:
		f, err := os.OpenFile(string(sink), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			t.logger.Warn("cannot open stderr sink file, discarding stderr",
				zap.String("path", string(sink)), zap.Error(err))
		} else {
			file = f
			defer file.Close()
		}
	}

	reader := bufio.NewReader(stderr)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			switch {
			case sink == StderrLog:
				t.logger.Info("downstream stderr",
					zap.String("line", strings.TrimRight(string(line), "\r\n")))
			case file != nil:
				_, _ = file.Write(line)
			}
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Warn("reading stderr", zap.Error(err))
			}
			return
		}
	}
}

// Send writes one framed message to the child's stdin. Writes are
// serialized; interleaved frames would corrupt the stream.
func (t *StdioTransport) Send(ctx context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.stdin.Write(append(message, '\n')); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	return nil
}

// Receive returns the next framed stdout line. When the child exits, the
// line channel closes and every pending Receive fails with io.EOF — the
// client layer turns that into a transport error on the affected calls.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
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

// Close shuts the child down: close stdin to signal EOF, wait out the
// grace period, then kill.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.logger.Info("stopping stdio downstream", zap.Int("pid", t.cmd.Process.Pid))
	t.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			t.logger.Warn("downstream exited with error", zap.Error(err))
		}
	case <-time.After(stdioShutdownGrace):
		t.logger.Warn("downstream ignored stdin close, killing it")
		if err := t.cmd.Process.Kill(); err != nil {
			t.logger.Warn("kill failed", zap.Error(err))
		}
		<-done
	}
	return nil
}

func trimLineEnding(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}
