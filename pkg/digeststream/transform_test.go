package digeststream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os/exec"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
)

func testPayload(size int) []byte {
	data := make([]byte, size)
	rnd := rand.New(rand.NewSource(42))
	//half random, half repeated so it actually compresses
	rnd.Read(data[:size/2])
	for i := size / 2; i < size; i++ {
		data[i] = byte(i % 7)
	}

	return data
}

func gunzip(t *testing.T, data []byte) []byte {
	zr, err := pgzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()

	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func testCompressors(t *testing.T) []Compressor {
	compressors := []Compressor{NewPgzipCompressor()}
	if _, err := exec.LookPath("gzip"); err == nil {
		compressors = append(compressors, NewGzipCompressor())
	} else {
		t.Log("gzip is not available, testing the in-process compressor only")
	}

	return compressors
}

func TestTransformDigests(t *testing.T) {
	tt := []struct {
		name string
		size int
	}{
		{name: "empty input", size: 0},
		{name: "small input", size: 100},
		{name: "multi buffer input", size: 3*DefaultBufferSize + 17},
		{name: "large input", size: 3 << 20},
	}

	for _, c := range testCompressors(t) {
		for _, test := range tt {
			input := testPayload(test.size)
			var output bytes.Buffer

			result, err := Transform(context.Background(), bytes.NewReader(input), c, &output, Options{})
			require.NoError(t, err, "%s/%s", c.Name(), test.name)

			assert.Equal(t, digest.FromBytes(input), result.InputDigest, "%s/%s", c.Name(), test.name)
			assert.Equal(t, int64(len(input)), result.InputSize, "%s/%s", c.Name(), test.name)
			assert.Equal(t, digest.FromBytes(output.Bytes()), result.OutputDigest, "%s/%s", c.Name(), test.name)
			assert.Equal(t, int64(output.Len()), result.OutputSize, "%s/%s", c.Name(), test.name)
			assert.Equal(t, input, gunzip(t, output.Bytes()), "%s/%s", c.Name(), test.name)
		}
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	input := testPayload(2 << 20)
	for _, c := range testCompressors(t) {
		var first, second bytes.Buffer
		r1, err := Transform(context.Background(), bytes.NewReader(input), c, &first, Options{BufferSize: 1024})
		require.NoError(t, err)
		r2, err := Transform(context.Background(), bytes.NewReader(input), c, &second, Options{})
		require.NoError(t, err)

		assert.Equal(t, r1.OutputDigest, r2.OutputDigest, c.Name())
		assert.True(t, bytes.Equal(first.Bytes(), second.Bytes()), c.Name())
	}
}

func TestTransformCompressorFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}

	c := &ExecCompressor{
		Path: "sh",
		Args: []string{"-c", "cat >/dev/null; echo 'no space left' >&2; exit 3"},
	}

	var output bytes.Buffer
	_, err := Transform(context.Background(), bytes.NewReader(testPayload(64*1024)), c, &output, Options{Path: "abc/layer.tar"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCompression))

	var exitErr *errs.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Status)
	assert.Equal(t, "no space left", exitErr.Diagnostics)
	assert.Contains(t, err.Error(), "abc/layer.tar")
}

func TestTransformCompressorExitsEarly(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}

	//the compressor never reads its input, so the writer sees a broken pipe
	c := &ExecCompressor{
		Path: "sh",
		Args: []string{"-c", "echo 'bad option' >&2; exit 1"},
	}

	var output bytes.Buffer
	_, err := Transform(context.Background(), bytes.NewReader(testPayload(4<<20)), c, &output, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCompression))
}

type failingWriter struct {
	failAfter int
	written   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.failAfter {
		return 0, errors.New("disk is full")
	}

	w.written += len(p)
	return len(p), nil
}

func TestTransformOutputFailure(t *testing.T) {
	for _, c := range testCompressors(t) {
		dst := &failingWriter{failAfter: 8 * 1024}
		_, err := Transform(context.Background(), bytes.NewReader(testPayload(8<<20)), c, dst, Options{})
		require.Error(t, err, c.Name())
		assert.True(t, errors.Is(err, errs.ErrStreamIO), "%s: %v", c.Name(), err)
		assert.Contains(t, err.Error(), "disk is full", c.Name())
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("read failed")
}

func TestTransformInputFailure(t *testing.T) {
	_, err := Transform(context.Background(), failingReader{}, NewPgzipCompressor(), io.Discard, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStreamIO))
}

func TestTransformStartFailure(t *testing.T) {
	c := &ExecCompressor{Path: "/nonexistent/compressor"}
	_, err := Transform(context.Background(), bytes.NewReader([]byte("data")), c, io.Discard, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCompression))
}

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "gzip -nf", c.Name())

	c, err = New(PgzipName)
	require.NoError(t, err)
	assert.Equal(t, PgzipName, c.Name())

	_, err = New("zstd")
	assert.Error(t, err)
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available(NewPgzipCompressor()))
	assert.False(t, Available(&ExecCompressor{Path: "/nonexistent/compressor"}))
	assert.False(t, Available(nil))

	_, err := exec.LookPath("gzip")
	assert.Equal(t, err == nil, Available(NewGzipCompressor()))
}
