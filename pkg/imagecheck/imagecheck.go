// Package imagecheck verifies that a docker-save archive is normalized:
// content addressed names match the content, the config diff IDs match
// the uncompressed layers and the archive layout is deterministic.
package imagecheck

import (
	"archive/tar"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/docker/dockerimage"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/workspace"
)

// ImageReport is the verification result for one manifest entry
type ImageReport struct {
	RepoTag  string   `json:"repo_tag,omitempty"`
	Config   string   `json:"config"`
	Layers   []string `json:"layers"`
	Verified bool     `json:"verified"`
	Skipped  string   `json:"skipped,omitempty"`
}

// Report is the verification result for an archive
type Report struct {
	ArchivePath string         `json:"archive_path"`
	Entries     int            `json:"entries"`
	Images      []*ImageReport `json:"images"`
	Problems    []string       `json:"problems,omitempty"`
}

func (r *Report) fail(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify checks the archive and returns the report.
// The returned error is an archive format error if any problems are found.
func Verify(archivePath string) (*Report, error) {
	const op = "imagecheck.Verify"
	report := &Report{ArchivePath: archivePath}

	pkg, err := dockerimage.LoadPackage(archivePath, true)
	if err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, archivePath, err)
	}

	report.Entries = len(pkg.Entries)
	if err := pkg.CheckIntegrity(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			report.fail("%s", line)
		}
	}

	checkLayout(pkg, report)

	single := len(pkg.Manifest) == 1
	for idx, m := range pkg.Manifest {
		imageReport := &ImageReport{
			Config: m.Config,
			Layers: m.Layers,
		}

		report.Images = append(report.Images, imageReport)
		verifyImage(archivePath, idx, m, single, imageReport, report)
	}

	log.WithFields(log.Fields{
		"op":       op,
		"archive":  archivePath,
		"images":   len(report.Images),
		"problems": len(report.Problems),
	}).Debug("archive verified")

	if len(report.Problems) > 0 {
		return report, errs.E(errs.KindArchiveFormat, op, archivePath,
			errors.Errorf("%d problem(s): %s", len(report.Problems), strings.Join(report.Problems, "; ")))
	}

	return report, nil
}

// checkLayout checks the deterministic archive properties:
// sorted allow-listed entries with epoch timestamps and no owner information
func checkLayout(pkg *dockerimage.Package, report *Report) {
	var prev string
	for idx, entry := range pkg.Entries {
		if idx > 0 && entry.Name < prev {
			report.fail("entry is out of order - %s (after %s)", entry.Name, prev)
		}

		prev = entry.Name

		if selected, err := workspace.IsSelected(path.Base(entry.Name)); err != nil || !selected {
			report.fail("unexpected entry - %s", entry.Name)
		}

		if entry.Type != tar.TypeReg && entry.Type != tar.TypeSymlink {
			report.fail("unexpected entry type (%c) - %s", entry.Type, entry.Name)
		}

		if entry.ModTime.Unix() != workspace.ArchiveTime.Unix() {
			report.fail("entry timestamp is not fixed - %s (%v)", entry.Name, entry.ModTime.UTC())
		}

		if entry.UID != 0 || entry.GID != 0 || entry.Uname != "" || entry.Gname != "" {
			report.fail("entry has owner information - %s", entry.Name)
		}
	}
}

func verifyImage(archivePath string, idx int, m dockerimage.ManifestObject, single bool, imageReport *ImageReport, report *Report) {
	problems := len(report.Problems)
	var tag *name.Tag
	if repoTag, ok := m.FirstRepoTag(); ok {
		imageReport.RepoTag = repoTag
		t, err := name.NewTag(repoTag)
		if err != nil {
			report.fail("image[%d]: bad repo tag - %v", idx, err)
			return
		}

		tag = &t
	} else if !single {
		//untagged images can only be selected in single image archives
		imageReport.Skipped = "untagged image in a multi-image archive"
		return
	}

	img, err := tarball.ImageFromPath(archivePath, tag)
	if err != nil {
		report.fail("image[%d]: can't open image - %v", idx, err)
		return
	}

	configName, err := img.ConfigName()
	if err != nil {
		report.fail("image[%d]: can't read config - %v", idx, err)
		return
	}

	if dockerimage.IsContentAddress(m.Config) && configName.String() != path.Base(m.Config) {
		report.fail("image[%d]: config name doesn't match its content - %s (%s)", idx, m.Config, configName)
	}

	layers, err := img.Layers()
	if err != nil {
		report.fail("image[%d]: can't read layers - %v", idx, err)
		return
	}

	if len(layers) != len(m.Layers) {
		report.fail("image[%d]: layer count mismatch - %d / %d", idx, len(layers), len(m.Layers))
		return
	}

	for lidx, layer := range layers {
		if err := verifyLayer(layer, m.Layers[lidx]); err != nil {
			report.fail("image[%d]: layer[%d] (%s) - %v", idx, lidx, m.Layers[lidx], err)
		}
	}

	imageReport.Verified = len(report.Problems) == problems
}

func verifyLayer(layer v1.Layer, layerName string) error {
	if dockerimage.IsContentAddress(layerName) {
		dgst, err := layer.Digest()
		if err != nil {
			return err
		}

		if dgst.String() != path.Base(layerName) {
			return errors.Errorf("name doesn't match the layer content (%s)", dgst)
		}
	}

	diffID, err := layer.DiffID()
	if err != nil {
		return err
	}

	rc, err := layer.Uncompressed()
	if err != nil {
		return err
	}

	defer rc.Close()

	actual, _, err := v1.SHA256(rc)
	if err != nil {
		return err
	}

	if actual != diffID {
		return errors.Errorf("diff_id mismatch - %s / %s", diffID, actual)
	}

	return nil
}
