// Package workspace manages the scratch directory a docker-save archive
// is extracted to, and the deterministic re-assembly of the output archive.
package workspace

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v3"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/util/fsutil"
)

const dirNamePattern = "imagenorm."

// SelectPatterns is the allow-list of base names copied to the output archive
var SelectPatterns = []string{
	"sha256:*",
	"manifest*",
	"repositories*",
}

// ArchiveTime is the modification time of every output archive entry
var ArchiveTime = time.Unix(0, 0)

// Workspace is an extracted docker-save archive
type Workspace struct {
	Root string
}

// New creates a new scratch directory under baseDir (the system temp dir if empty)
func New(baseDir string) (*Workspace, error) {
	root, err := os.MkdirTemp(baseDir, dirNamePattern)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, "workspace.New", baseDir, err)
	}

	//the normalizer resolves links relative to the real root path
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	log.Debugf("workspace.New: root=%s", root)
	return &Workspace{Root: root}, nil
}

// Path returns the host path for a slash separated workspace path
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Remove deletes the workspace with everything in it
func (w *Workspace) Remove() error {
	if err := fsutil.Remove(w.Root); err != nil {
		return errs.E(errs.KindFilesystem, "workspace.Remove", w.Root, err)
	}

	return nil
}

// Extract unpacks the archive into the workspace.
// Entry names and hardlink targets can't escape the workspace root
// (symlinks are created as-is, they are only resolved in scope later).
func (w *Workspace) Extract(archivePath string) error {
	const op = "workspace.Extract"
	afile, err := os.Open(archivePath)
	if err != nil {
		return errs.E(errs.KindFilesystem, op, archivePath, err)
	}

	defer afile.Close()

	tr := tar.NewReader(afile)
	var count int
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return errs.E(errs.KindArchiveFormat, op, archivePath, err)
		}

		name := scopedName(hdr.Name)
		if name == "" {
			log.Debugf("%s: ignoring entry - %q", op, hdr.Name)
			continue
		}

		if err := w.extractEntry(name, hdr, tr); err != nil {
			return errs.E(errs.KindFilesystem, op, archivePath, errors.Wrapf(err, "entry %q", hdr.Name))
		}

		count++
	}

	log.Debugf("%s: archive=%s entries=%d", op, archivePath, count)
	return nil
}

func scopedName(name string) string {
	name = path.Clean("/" + name)
	if name == "/" {
		return ""
	}

	return name[1:]
}

func (w *Workspace) extractEntry(name string, hdr *tar.Header, tr *tar.Reader) error {
	dir, err := securejoin.SecureJoin(w.Root, path.Dir(name))
	if err != nil {
		return err
	}

	target := filepath.Join(dir, path.Base(name))

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0755)
	case tar.TypeReg:
		if err := prepareTarget(dir, target); err != nil {
			return err
		}

		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm()|0600)
		if err != nil {
			return err
		}

		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}

		return f.Close()
	case tar.TypeSymlink:
		if err := prepareTarget(dir, target); err != nil {
			return err
		}

		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		source, err := securejoin.SecureJoin(w.Root, scopedName(hdr.Linkname))
		if err != nil {
			return err
		}

		if err := prepareTarget(dir, target); err != nil {
			return err
		}

		return os.Link(source, target)
	default:
		log.Debugf("workspace.extractEntry: ignoring entry type %v - %q", hdr.Typeflag, name)
		return nil
	}
}

func prepareTarget(dir, target string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	//a later entry replaces the earlier one
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		return os.Remove(target)
	}

	return nil
}

// Select returns the sorted workspace paths (slash separated, relative to the root)
// of the non-directory objects with an allow-listed base name
func (w *Workspace) Select() ([]string, error) {
	var selected []string
	err := filepath.Walk(w.Root, func(fpath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		ok, err := IsSelected(info.Name())
		if err != nil || !ok {
			return err
		}

		rel, err := fsutil.RelPath(w.Root, fpath)
		if err != nil {
			return err
		}

		selected = append(selected, rel)
		return nil
	})
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, "workspace.Select", w.Root, err)
	}

	sort.Strings(selected)
	return selected, nil
}

// IsSelected returns true if the base name matches one of the SelectPatterns
func IsSelected(name string) (bool, error) {
	for _, pattern := range SelectPatterns {
		matched, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, err
		}

		if matched {
			return true, nil
		}
	}

	return false, nil
}

// Assemble writes the selected workspace objects to a new archive in sorted order.
// The modification time of every selected object is set to ArchiveTime first.
// The output is written to a temporary file and renamed to outPath when complete.
func (w *Workspace) Assemble(outPath string) ([]string, error) {
	const op = "workspace.Assemble"
	selected, err := w.Select()
	if err != nil {
		return nil, err
	}

	for _, rel := range selected {
		if err := fsutil.SetModTime(w.Path(rel), ArchiveTime); err != nil {
			return nil, errs.E(errs.KindFilesystem, op, rel, err)
		}
	}

	tf, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, outPath, err)
	}

	tmpPath := tf.Name()
	defer func() {
		if tf != nil {
			tf.Close()
			os.Remove(tmpPath)
		}
	}()

	tw := tar.NewWriter(tf)
	for _, rel := range selected {
		if err := w.addEntry(tw, rel); err != nil {
			return nil, errs.E(errs.KindFilesystem, op, rel, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errs.E(errs.KindStreamIO, op, outPath, err)
	}

	if err := tf.Close(); err != nil {
		return nil, errs.E(errs.KindStreamIO, op, outPath, err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, errs.E(errs.KindFilesystem, op, outPath, err)
	}

	tf = nil
	log.Debugf("%s: out=%s entries=%d", op, outPath, len(selected))
	return selected, nil
}

func (w *Workspace) addEntry(tw *tar.Writer, rel string) error {
	fpath := w.Path(rel)
	info, err := os.Lstat(fpath)
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:    rel,
		ModTime: info.ModTime(),
	}

	switch {
	case info.Mode().IsRegular():
		hdr.Typeflag = tar.TypeReg
		hdr.Mode = 0644
		hdr.Size = info.Size()
	case info.Mode()&os.ModeSymlink != 0:
		linkRef, err := os.Readlink(fpath)
		if err != nil {
			return err
		}

		hdr.Typeflag = tar.TypeSymlink
		hdr.Mode = 0777
		hdr.Linkname = linkRef
	default:
		return errors.Errorf("unsupported file type %s", info.Mode())
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if hdr.Typeflag != tar.TypeReg {
		return nil
	}

	f, err := os.Open(fpath)
	if err != nil {
		return err
	}

	defer f.Close()
	if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
		return errors.Wrapf(err, "cannot write %s", rel)
	}

	return nil
}
