package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Transport is a line-oriented channel to a UCI engine. The concrete
// mechanism (child process, socket, in-memory fake) is not part of the
// contract.
type Transport interface {
	Send(cmd string) error
	// Lines delivers inbound engine lines. The channel closes when the
	// engine goes away.
	Lines() <-chan string
	Close() error
}

// procTransport runs the engine as a child process and speaks UCI over
// its stdio.
type procTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	mu     sync.Mutex
	closed bool
}

func newProcTransport(binaryPath string) (*procTransport, error) {
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	t := &procTransport{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 256),
	}
	go t.pump(stdoutPipe)
	return t, nil
}

func (t *procTransport) pump(r io.Reader) {
	defer close(t.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.lines <- line
	}
}

func (t *procTransport) Send(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport closed")
	}
	_, err := io.WriteString(t.stdin, cmd+"\n")
	return err
}

func (t *procTransport) Lines() <-chan string { return t.lines }

func (t *procTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
