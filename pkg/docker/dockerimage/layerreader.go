package dockerimage

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"os"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionXz    Compression = "xz"
)

var (
	gzipMagic  = []byte{0x1F, 0x8B, 0x08}
	bzip2Magic = []byte{0x42, 0x5A, 0x68}
	xzMagic    = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
)

// DetectCompression checks the magic bytes at the start of a layer stream
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXz
	default:
		return CompressionNone
	}
}

type layerReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *layerReadCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// DecompressStream returns a reader with the uncompressed layer tar data
// (plain tar streams are returned as-is). Closing the returned reader
// doesn't close the source reader.
func DecompressStream(src io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(src)
	//a short stream is fine here (it's just not compressed)
	header, _ := br.Peek(len(xzMagic))

	compression := DetectCompression(header)
	switch compression {
	case CompressionGzip:
		zr, err := pgzip.NewReader(br)
		if err != nil {
			return nil, compression, err
		}

		return &layerReadCloser{Reader: zr, closers: []io.Closer{zr}}, compression, nil
	case CompressionBzip2:
		return &layerReadCloser{Reader: bzip2.NewReader(br)}, compression, nil
	case CompressionXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, compression, err
		}

		return &layerReadCloser{Reader: xr}, compression, nil
	default:
		return &layerReadCloser{Reader: br}, compression, nil
	}
}

// OpenLayer opens a layer archive file for reading its uncompressed tar data
func OpenLayer(path string) (io.ReadCloser, Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CompressionNone, err
	}

	rc, compression, err := DecompressStream(f)
	if err != nil {
		f.Close()
		return nil, compression, err
	}

	lrc := rc.(*layerReadCloser)
	lrc.closers = append(lrc.closers, f)
	return lrc, compression, nil
}
