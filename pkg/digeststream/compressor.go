package digeststream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Compressor names
const (
	GzipName  = "gzip"
	PgzipName = "pgzip"
)

// Stream is one running compressor instance.
// Stdin must always be closed to signal the end of the input.
// Wait may only be called after Stdout and Stderr have been fully read.
type Stream interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() (int, error)
}

// Compressor starts single-input/single-output compressing transformers
type Compressor interface {
	Name() string
	Start(ctx context.Context) (Stream, error)
}

// ExecCompressor runs an external compressor process
type ExecCompressor struct {
	Path string
	Args []string
}

// NewGzipCompressor returns the external 'gzip -nf' compressor
// ('-n' keeps the original name and timestamp out of the gzip header)
func NewGzipCompressor() *ExecCompressor {
	return &ExecCompressor{
		Path: "gzip",
		Args: []string{"-nf"},
	}
}

func (c *ExecCompressor) Name() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

func (c *ExecCompressor) Start(ctx context.Context) (Stream, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	log.Tracef("digeststream.ExecCompressor.Start: pid=%d cmd=%q", cmd.Process.Pid, c.Name())
	return &execStream{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

type execStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (s *execStream) Stdin() io.WriteCloser { return s.stdin }
func (s *execStream) Stdout() io.Reader      { return s.stdout }
func (s *execStream) Stderr() io.Reader      { return s.stderr }

func (s *execStream) Wait() (int, error) {
	err := s.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := exitErr.ExitCode()
		if status < 0 {
			//killed by a signal
			status = 128
		}

		return status, nil
	}

	return -1, fmt.Errorf("wait: %w", err)
}

// New returns the compressor with the given name
func New(name string) (Compressor, error) {
	switch name {
	case "", GzipName:
		return NewGzipCompressor(), nil
	case PgzipName:
		return NewPgzipCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compressor - %q", name)
	}
}

// Available reports if the compressor can be started on this host
func Available(c Compressor) bool {
	ec, ok := c.(*ExecCompressor)
	if !ok {
		return c != nil
	}

	_, err := exec.LookPath(ec.Path)
	return err == nil
}
