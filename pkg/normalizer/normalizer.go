// Package normalizer rewrites docker-save archives into a canonical,
// content addressed form: the same image content always produces
// a byte-identical archive, independent of when and where it was built.
package normalizer

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/workspace"
)

// LayerEntryTime is the modification time of every entry inside a normalized layer
var LayerEntryTime = time.Unix(946684800, 0)

// ConfigCreated replaces every creation timestamp in the image config
const ConfigCreated = "1970-01-01T00:00:00Z"

// Options configure the normalizer
type Options struct {
	// TempDir is the base directory for the workspace and the layer spool files
	// (the system temp dir if empty)
	TempDir    string
	Compressor digeststream.Compressor
	BufferSize int
}

// Normalizer rewrites extracted docker-save archives
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.Compressor == nil {
		opts.Compressor = digeststream.NewGzipCompressor()
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = digeststream.DefaultBufferSize
	}

	return &Normalizer{opts: opts}
}

// Result describes a complete archive normalization
type Result struct {
	*Summary
	ArchivePath   string        `json:"archive_path"`
	ArchiveSize   int64         `json:"archive_size"`
	ArchiveDigest digest.Digest `json:"archive_digest"`
	Entries       []string      `json:"entries"`
}

// Normalize extracts the input archive to a new workspace, rewrites it
// and assembles the output archive. The workspace is always removed.
// The output archive is only created if everything succeeds.
func (n *Normalizer) Normalize(ctx context.Context, inPath, outPath string) (*Result, error) {
	logger := log.WithFields(log.Fields{
		"op":  "normalizer.Normalize",
		"in":  inPath,
		"out": outPath,
	})

	ws, err := workspace.New(n.opts.TempDir)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := ws.Remove(); err != nil {
			logger.Errorf("error removing workspace - %v", err)
		}
	}()

	if err := ws.Extract(inPath); err != nil {
		return nil, err
	}

	logger.Debugf("extracted to %s", ws.Root)

	summary, err := n.Rewrite(ctx, ws.Root)
	if err != nil {
		return nil, err
	}

	entries, err := ws.Assemble(outPath)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Summary:     summary,
		ArchivePath: outPath,
		Entries:     entries,
	}

	afile, err := os.Open(outPath)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, "normalizer.Normalize", outPath, err)
	}

	defer afile.Close()

	digester := digest.Canonical.Digester()
	size, err := io.Copy(digester.Hash(), afile)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, "normalizer.Normalize", outPath, errors.Wrap(err, "digest"))
	}

	result.ArchiveSize = size
	result.ArchiveDigest = digester.Digest()

	logger.WithFields(log.Fields{
		"images": len(summary.Images),
		"digest": result.ArchiveDigest,
	}).Debug("done")

	return result, nil
}
