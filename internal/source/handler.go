package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Stream is an open line source. Stderr and Wait are optional.
type Stream struct {
	Stdout io.Reader
	Stderr io.Reader
	Wait   func() error
}

// Handler opens the stream a Source reads from.
type Handler interface {
	Open(ctx context.Context) (*Stream, error)
	Name() string
}

// command runs an external decoder and reads its stdout.
type command struct {
	binPath string
	args    []string
}

// NewCommand creates a handler running the named decoder binary. The binary is
// looked up in PATH, then in a bin directory next to the executable or in the
// working directory, unless name contains a separator.
func NewCommand(name string, args ...string) (Handler, error) {
	binPath, err := findDecoder(name, decoderDirs()...)
	if err != nil {
		return nil, fmt.Errorf("error finding decoder: %w", err)
	}

	return &command{binPath: binPath, args: args}, nil
}

func (c *command) Open(ctx context.Context) (*Stream, error) {
	cmd := exec.CommandContext(ctx, c.binPath, c.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	return &Stream{Stdout: stdout, Stderr: stderr, Wait: cmd.Wait}, nil
}

func (c *command) Name() string {
	return c.binPath
}

// file replays a recorded decoder output.
type file struct {
	path string
}

// NewFile creates a handler replaying the lines of a file.
func NewFile(path string) Handler {
	return &file{path: path}
}

func (f *file) Open(ctx context.Context) (*Stream, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		fh.Close()
	}()

	return &Stream{Stdout: &closeNotifier{Reader: fh, done: done}}, nil
}

func (f *file) Name() string {
	return f.path
}

// closeNotifier signals done once the underlying reader is exhausted.
type closeNotifier struct {
	io.Reader
	done   chan struct{}
	closed bool
}

func (c *closeNotifier) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	if err != nil && !c.closed {
		c.closed = true
		close(c.done)
	}
	return n, err
}
