package normalizer

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	"github.com/slimtoolkit/imagenorm/pkg/docker/dockerimage"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/util/fsutil"
)

// LayerResult describes a normalized layer
type LayerResult struct {
	Source      string                  `json:"source"`
	Name        string                  `json:"name"`
	DiffID      digest.Digest           `json:"diff_id"`
	Size        int64                   `json:"size"`
	DataSize    int64                   `json:"data_size"`
	Entries     int                     `json:"entries"`
	Compression dockerimage.Compression `json:"source_compression"`
}

// NormalizeLayer rewrites the layer archive with fixed entry timestamps,
// compresses it and stores it as 'sha256:<compressed digest>' next to
// the layer directory. The layer directory is removed.
// Layers that are already content addressed blobs are replaced in their own directory.
// The layer name is the slash separated path relative to root (it may be a symlink).
func (n *Normalizer) NormalizeLayer(ctx context.Context, root, layerName string) (*LayerResult, error) {
	const op = "normalizer.NormalizeLayer"
	layerRel := path.Clean(layerName)
	if path.IsAbs(layerRel) || layerRel == "." || layerRel == ".." || strings.HasPrefix(layerRel, "../") {
		return nil, errs.E(errs.KindArchiveFormat, op, layerName,
			errors.New("bad layer reference"))
	}

	holderPath := filepath.Join(root, filepath.FromSlash(layerRel))

	//<layer id>/layer.tar: the new blob goes next to the layer directory
	workDir := filepath.Dir(filepath.Dir(holderPath))
	removePath := filepath.Dir(holderPath)
	if dockerimage.IsContentAddress(layerRel) {
		workDir = filepath.Dir(holderPath)
		removePath = holderPath
	} else if path.Dir(layerRel) == "." {
		return nil, errs.E(errs.KindArchiveFormat, op, layerName,
			errors.New("layer is not in its own directory"))
	}

	if !fsutil.IsWithin(root, workDir) || removePath == root {
		return nil, errs.E(errs.KindArchiveFormat, op, layerName,
			errors.New("layer directory is outside of the workspace"))
	}

	dataPath, err := securejoin.SecureJoin(root, layerRel)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, err)
	}

	logger := log.WithFields(log.Fields{"op": op, "layer": layerName})
	if dataPath != holderPath {
		logger.Debugf("layer data is in %s", dataPath)
	}

	spool, err := os.CreateTemp(n.opts.TempDir, "imagenorm-layer-*.tar")
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, errors.Wrap(err, "spool"))
	}

	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	result := &LayerResult{Source: layerRel}
	if err := rewriteLayer(dataPath, spool, result); err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, layerName, err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, errors.Wrap(err, "spool"))
	}

	out, err := os.CreateTemp(workDir, ".imagenorm-layer-*")
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, err)
	}

	outPath := out.Name()
	defer func() {
		if out != nil {
			out.Close()
			os.Remove(outPath)
		}
	}()

	digests, err := digeststream.Transform(ctx, spool, n.opts.Compressor, out, digeststream.Options{
		BufferSize: n.opts.BufferSize,
		Path:       layerName,
	})
	if err != nil {
		return nil, err
	}

	if err := out.Close(); err != nil {
		return nil, errs.E(errs.KindStreamIO, op, layerName, err)
	}

	newPath := filepath.Join(workDir, digests.OutputDigest.String())
	if err := os.Rename(outPath, newPath); err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, err)
	}

	out = nil
	if removePath != newPath {
		if err := fsutil.Remove(removePath); err != nil {
			return nil, errs.E(errs.KindFilesystem, op, layerName, err)
		}
	}

	result.Name, err = fsutil.RelPath(root, newPath)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, layerName, err)
	}

	result.DiffID = digests.InputDigest
	result.DataSize = digests.InputSize
	result.Size = digests.OutputSize

	logger.WithFields(log.Fields{
		"name":    result.Name,
		"diff_id": result.DiffID,
		"entries": result.Entries,
	}).Debug("layer normalized")

	return result, nil
}

// rewriteLayer copies the layer entries in their original order
// setting the entry modification time to LayerEntryTime
// and dropping the access and change times.
// All entries are written in the PAX format.
func rewriteLayer(layerPath string, dst io.Writer, result *LayerResult) error {
	src, compression, err := dockerimage.OpenLayer(layerPath)
	if err != nil {
		return err
	}

	defer src.Close()
	result.Compression = compression

	tr := tar.NewReader(src)
	tw := tar.NewWriter(dst)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return errors.Wrap(err, "read layer")
		}

		hdr.ModTime = LayerEntryTime
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Format = tar.FormatPAX

		if err := tw.WriteHeader(hdr); err != nil {
			return errors.Wrapf(err, "write layer entry %q", hdr.Name)
		}

		//only the entries with data have something to copy
		if _, err := io.Copy(tw, tr); err != nil {
			return errors.Wrapf(err, "copy layer entry %q", hdr.Name)
		}

		result.Entries++
	}

	return tw.Close()
}
