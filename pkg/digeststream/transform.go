// Package digeststream pushes a byte stream through a compressor while
// computing the digest of the input bytes and the digest of the output bytes
// in the same pass, without holding either stream in memory.
package digeststream

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
)

// DefaultBufferSize is the chunk size used to move data through the compressor
const DefaultBufferSize = 4096

// max compressor diagnostics kept for error reports
const maxDiagnosticsSize = 64 * 1024

// Result holds the digests and sizes of both sides of the compressor
type Result struct {
	InputDigest  digest.Digest
	InputSize    int64
	OutputDigest digest.Digest
	OutputSize   int64
}

// Options configure the transform
type Options struct {
	BufferSize int
	// Path is only used to give errors more context
	Path string
}

// Transform writes src into the compressor and the compressed bytes into dst.
// The input stream of the compressor is always closed and both output drains
// are always joined before the compressor exit status is collected.
func Transform(ctx context.Context, src io.Reader, c Compressor, dst io.Writer, opts Options) (*Result, error) {
	const op = "digeststream.Transform"
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.Start(ctx)
	if err != nil {
		return nil, errs.E(errs.KindCompression, op, opts.Path, err)
	}

	inDigester := digest.Canonical.Digester()
	outDigester := digest.Canonical.Digester()
	diagnostics := newLimitedBuffer(maxDiagnosticsSize)

	var outSize int64
	var drains errgroup.Group
	drains.Go(func() error {
		n, err := io.CopyBuffer(
			io.MultiWriter(dst, outDigester.Hash()),
			onlyReader{stream.Stdout()},
			make([]byte, bufSize))
		outSize = n
		if err != nil {
			//stop the compressor, so the input writer can't get stuck
			cancel()
			return errs.E(errs.KindStreamIO, "digeststream.drain.stdout", opts.Path, err)
		}

		return nil
	})

	drains.Go(func() error {
		if _, err := io.Copy(diagnostics, stream.Stderr()); err != nil {
			cancel()
			return errs.E(errs.KindStreamIO, "digeststream.drain.stderr", opts.Path, err)
		}

		return nil
	})

	inSize, writeErr := io.CopyBuffer(
		io.MultiWriter(stream.Stdin(), inDigester.Hash()),
		onlyReader{src},
		make([]byte, bufSize))
	closeErr := stream.Stdin().Close()

	drainErr := drains.Wait()
	status, waitErr := stream.Wait()

	log.WithFields(log.Fields{
		"op":         op,
		"path":       opts.Path,
		"compressor": c.Name(),
		"in.size":    inSize,
		"out.size":   outSize,
		"status":     status,
	}).Trace("compressor finished")

	if drainErr != nil {
		return nil, drainErr
	}

	if waitErr != nil {
		return nil, errs.E(errs.KindCompression, op, opts.Path, waitErr)
	}

	if status != 0 {
		return nil, errs.E(errs.KindCompression, op, opts.Path,
			&errs.ExitError{
				Compressor:  c.Name(),
				Status:      status,
				Diagnostics: diagnostics.String(),
			})
	}

	if writeErr != nil {
		return nil, errs.E(errs.KindStreamIO, "digeststream.write.stdin", opts.Path, writeErr)
	}

	if closeErr != nil {
		return nil, errs.E(errs.KindStreamIO, "digeststream.close.stdin", opts.Path, closeErr)
	}

	return &Result{
		InputDigest:  inDigester.Digest(),
		InputSize:    inSize,
		OutputDigest: outDigester.Digest(),
		OutputSize:   outSize,
	}, nil
}

// onlyReader hides WriterTo/ReaderFrom so CopyBuffer really uses the buffer
type onlyReader struct {
	io.Reader
}

// limitedBuffer keeps the first max bytes written to it and discards the rest
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}

	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
