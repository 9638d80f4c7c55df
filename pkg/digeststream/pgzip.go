package digeststream

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
)

// Fixed pgzip parameters (the output depends on the block size)
const (
	PgzipBlockSize = 1 << 20
	PgzipBlocks    = 4
)

// PgzipCompressor compresses in-process with parallel gzip
// while keeping the same stream contract as an external process
type PgzipCompressor struct {
	Level     int
	BlockSize int
	Blocks    int
}

func NewPgzipCompressor() *PgzipCompressor {
	return &PgzipCompressor{
		Level:     pgzip.DefaultCompression,
		BlockSize: PgzipBlockSize,
		Blocks:    PgzipBlocks,
	}
}

func (c *PgzipCompressor) Name() string {
	return PgzipName
}

func (c *PgzipCompressor) Start(ctx context.Context) (Stream, error) {
	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()
	errReader, errWriter := io.Pipe()

	s := &pgzipStream{
		stdin:    inWriter,
		stdout:   outReader,
		stderr:   errReader,
		finished: make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			inReader.CloseWithError(ctx.Err())
			outReader.CloseWithError(ctx.Err())
		case <-s.finished:
		}
	}()

	go func() {
		err := c.compress(outWriter, inReader)
		//unblock the input writer if the compressor stopped early
		inReader.CloseWithError(fmt.Errorf("%s: compressor is done", PgzipName))
		outWriter.Close()
		if err != nil {
			fmt.Fprintf(errWriter, "%s: %v\n", PgzipName, err)
		}
		errWriter.Close()

		s.err = err
		close(s.finished)
	}()

	return s, nil
}

func (c *PgzipCompressor) compress(dst io.Writer, src io.Reader) error {
	zw, err := pgzip.NewWriterLevel(dst, c.Level)
	if err != nil {
		return err
	}

	if err := zw.SetConcurrency(c.BlockSize, c.Blocks); err != nil {
		zw.Close()
		return err
	}

	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

type pgzipStream struct {
	stdin    *io.PipeWriter
	stdout   *io.PipeReader
	stderr   *io.PipeReader
	finished chan struct{}
	err      error
}

func (s *pgzipStream) Stdin() io.WriteCloser { return s.stdin }
func (s *pgzipStream) Stdout() io.Reader      { return s.stdout }
func (s *pgzipStream) Stderr() io.Reader      { return s.stderr }

func (s *pgzipStream) Wait() (int, error) {
	<-s.finished
	if s.err != nil {
		return 1, nil
	}

	return 0, nil
}
