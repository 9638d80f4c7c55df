package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	base := fmt.Errorf("short write")
	err := fmt.Errorf("layer: %w", E(KindStreamIO, "digeststream.Transform", "l1/layer.tar", base))

	assert.True(t, errors.Is(err, ErrStreamIO))
	assert.False(t, errors.Is(err, ErrCompression))
	assert.True(t, errors.Is(err, base))
	assert.True(t, errors.Is(err, &Error{Kind: KindStreamIO, Op: "digeststream.Transform"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindStreamIO, Op: "other"}))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, `filesystem: workspace.New path="/tmp/x": denied`,
		E(KindFilesystem, "workspace.New", "/tmp/x", errors.New("denied")).Error())
	assert.Equal(t, "archive.format: normalizer.Rewrite",
		E(KindArchiveFormat, "normalizer.Rewrite", "", nil).Error())
}

func TestErrorLocation(t *testing.T) {
	err := E(KindConfigIntegrity, "op", "", nil)
	assert.True(t, strings.HasSuffix(err.File, "errors_test.go"))
	assert.NotZero(t, err.Line)
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(fmt.Errorf("wrapped: %w", E(KindCompression, "op", "", nil)))
	assert.True(t, ok)
	assert.Equal(t, KindCompression, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "gzip -nf exited with status 1", (&ExitError{Compressor: "gzip -nf", Status: 1}).Error())
	assert.Equal(t, "gzip exited with status 2: bad input",
		(&ExitError{Compressor: "gzip", Status: 2, Diagnostics: "bad input"}).Error())
}
