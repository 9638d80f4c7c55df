package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind identifies the failure category of a normalization error
type Kind string

// Error kinds
const (
	KindArchiveFormat   Kind = "archive.format"
	KindCompression     Kind = "compression"
	KindStreamIO        Kind = "stream.io"
	KindConfigIntegrity Kind = "config.integrity"
	KindFilesystem      Kind = "filesystem"
)

// Sentinel values to use with errors.Is()
var (
	ErrArchiveFormat   = &Error{Kind: KindArchiveFormat}
	ErrCompression     = &Error{Kind: KindCompression}
	ErrStreamIO        = &Error{Kind: KindStreamIO}
	ErrConfigIntegrity = &Error{Kind: KindConfigIntegrity}
	ErrFilesystem      = &Error{Kind: KindFilesystem}
)

// Error is a classified failure with the operation and path it happened on
type Error struct {
	Kind Kind   `json:"kind"`
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

func (e *Error) Error() string {
	var path string
	if e.Path != "" {
		path = fmt.Sprintf(" path=%q", e.Path)
	}

	if e.Err == nil {
		return fmt.Sprintf("%s: %s%s", e.Kind, e.Op, path)
	}

	return fmt.Sprintf("%s: %s%s: %v", e.Kind, e.Op, path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind so the package sentinels work with errors.Is()
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// E creates a classified error recording the caller location
func E(kind Kind, op, path string, err error) *Error {
	e := &Error{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		e.File = file
		e.Line = line
	}

	return e
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return "", false
}

// ExitError describes a compressor that terminated with a non-zero status
type ExitError struct {
	Compressor  string `json:"compressor"`
	Status      int    `json:"status"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (e *ExitError) Error() string {
	if e.Diagnostics == "" {
		return fmt.Sprintf("%s exited with status %d", e.Compressor, e.Status)
	}

	return fmt.Sprintf("%s exited with status %d: %s", e.Compressor, e.Status, e.Diagnostics)
}
