package dockerimage

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/util/jsonutil"
)

const maxLinkHops = 8

// Package is the metadata view of a docker-save archive
type Package struct {
	Manifest     []ManifestObject
	Repositories RepositoriesObject
	// image configs by archive entry name
	Configs map[string]*ocispec.Image
	// layers by resolved archive entry name (only when the layers are inspected)
	Layers     map[string]*Layer
	Entries    []*EntryMetadata
	EntryRefs  map[string]*EntryMetadata
	HasRepoIdx bool
}

// EntryMetadata describes one archive entry
type EntryMetadata struct {
	Name       string        `json:"name"`
	Type       byte          `json:"type"`
	Size       int64         `json:"size,omitempty"`
	Mode       os.FileMode   `json:"mode,omitempty"`
	UID        int           `json:"uid"`
	GID        int           `json:"gid"`
	Uname      string        `json:"uname,omitempty"`
	Gname      string        `json:"gname,omitempty"`
	ModTime    time.Time     `json:"mod_time"`
	LinkTarget string        `json:"link_target,omitempty"`
	Digest     digest.Digest `json:"digest,omitempty"`
}

// Layer describes the uncompressed content of a layer archive
type Layer struct {
	Name        string        `json:"name"`
	Compression Compression   `json:"compression"`
	DiffID      digest.Digest `json:"diff_id"`
	Stats       LayerStats    `json:"stats"`
}

func newPackage() *Package {
	return &Package{
		Configs:   map[string]*ocispec.Image{},
		Layers:    map[string]*Layer{},
		EntryRefs: map[string]*EntryMetadata{},
	}
}

// LoadPackage reads the archive metadata: the first pass collects the manifest,
// the repository index and the entry digests, the second pass reads
// the image configs (and the layers when inspectLayers is set)
func LoadPackage(archivePath string, inspectLayers bool) (*Package, error) {
	pkg := newPackage()

	err := walkArchive(archivePath, func(hdr *tar.Header, tr *tar.Reader) error {
		entry := &EntryMetadata{
			Name:       hdr.Name,
			Type:       hdr.Typeflag,
			Size:       hdr.Size,
			Mode:       hdr.FileInfo().Mode(),
			UID:        hdr.Uid,
			GID:        hdr.Gid,
			Uname:      hdr.Uname,
			Gname:      hdr.Gname,
			ModTime:    hdr.ModTime,
			LinkTarget: hdr.Linkname,
		}

		pkg.Entries = append(pkg.Entries, entry)
		pkg.EntryRefs[entry.Name] = entry

		if hdr.Typeflag != tar.TypeReg {
			return nil
		}

		var data bytes.Buffer
		var content io.Writer = io.Discard
		switch entry.Name {
		case ManifestFileName, RepositoriesFileName:
			content = &data
		}

		digester := digest.Canonical.Digester()
		if _, err := io.Copy(io.MultiWriter(digester.Hash(), content), tr); err != nil {
			return err
		}

		entry.Digest = digester.Digest()

		switch entry.Name {
		case ManifestFileName:
			if err := jsonutil.Decode(&data, &pkg.Manifest); err != nil {
				return fmt.Errorf("malformed manifest - %v", err)
			}
		case RepositoriesFileName:
			if err := jsonutil.Decode(&data, &pkg.Repositories); err != nil {
				return fmt.Errorf("malformed repository index - %v", err)
			}

			pkg.HasRepoIdx = true
		}

		return nil
	})
	if err != nil {
		log.Errorf("dockerimage.LoadPackage: error reading archive(%v) - %v", archivePath, err)
		return nil, err
	}

	if _, ok := pkg.EntryRefs[ManifestFileName]; !ok {
		return nil, fmt.Errorf("dockerimage.LoadPackage: missing manifest file - %v", archivePath)
	}

	wanted := map[string]bool{}
	for _, m := range pkg.Manifest {
		wanted[m.Config] = true
		if inspectLayers {
			for _, layerName := range m.Layers {
				if resolved, err := pkg.ResolveEntry(layerName); err == nil {
					wanted[resolved] = true
				}
			}
		}
	}

	configs := configNames(pkg.Manifest)
	err = walkArchive(archivePath, func(hdr *tar.Header, tr *tar.Reader) error {
		if hdr.Typeflag != tar.TypeReg || !wanted[hdr.Name] {
			return nil
		}

		if _, isConfig := configs[hdr.Name]; isConfig {
			var config ocispec.Image
			if err := jsonutil.Decode(tr, &config); err != nil {
				return fmt.Errorf("malformed image config (%v) - %v", hdr.Name, err)
			}

			pkg.Configs[hdr.Name] = &config
			return nil
		}

		layer, err := layerFromStream(tr, hdr.Name)
		if err != nil {
			return fmt.Errorf("error reading layer (%v) - %v", hdr.Name, err)
		}

		pkg.Layers[hdr.Name] = layer
		return nil
	})
	if err != nil {
		log.Errorf("dockerimage.LoadPackage: error reading archive(%v) - %v", archivePath, err)
		return nil, err
	}

	return pkg, nil
}

func configNames(manifest []ManifestObject) map[string]struct{} {
	names := map[string]struct{}{}
	for _, m := range manifest {
		names[m.Config] = struct{}{}
	}

	return names
}

func walkArchive(archivePath string, visit func(hdr *tar.Header, tr *tar.Reader) error) error {
	afile, err := os.Open(archivePath)
	if err != nil {
		return err
	}

	defer afile.Close()

	tr := tar.NewReader(afile)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		if hdr == nil || hdr.Name == "" {
			log.Debugf("dockerimage.walkArchive: ignoring bad tar header")
			continue
		}

		hdr.Name = path.Clean(hdr.Name)
		if err := visit(hdr, tr); err != nil {
			return err
		}
	}

	return nil
}

// ResolveEntry follows symlinked archive entries (layer.tar symlinks to a lower layer)
func (p *Package) ResolveEntry(name string) (string, error) {
	name = path.Clean(name)
	for hop := 0; hop <= maxLinkHops; hop++ {
		entry, ok := p.EntryRefs[name]
		if !ok {
			return "", fmt.Errorf("no archive entry - %s", name)
		}

		switch entry.Type {
		case tar.TypeReg:
			return name, nil
		case tar.TypeSymlink:
			target := entry.LinkTarget
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(name), target)
			}

			name = path.Clean(strings.TrimPrefix(target, "/"))
		case tar.TypeLink:
			name = path.Clean(entry.LinkTarget)
		default:
			return "", fmt.Errorf("archive entry is not a file - %s", name)
		}
	}

	return "", fmt.Errorf("too many links - %s", name)
}

func layerFromStream(src io.Reader, name string) (*Layer, error) {
	rc, compression, err := DecompressStream(src)
	if err != nil {
		return nil, err
	}

	defer rc.Close()

	layer := &Layer{
		Name:        name,
		Compression: compression,
	}

	digester := digest.Canonical.Digester()
	data := io.TeeReader(rc, digester.Hash())
	tr := tar.NewReader(data)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		layer.Stats.ObjectCount++
		layer.Stats.AllSize += uint64(hdr.Size)

		if IsDeletedFileObject(hdr.Name) {
			if path.Base(hdr.Name) == WhiteoutOpaqueDir {
				layer.Stats.OpaqueCount++
			} else {
				layer.Stats.DeletedCount++
			}
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			layer.Stats.FileCount++
		case tar.TypeDir:
			layer.Stats.DirCount++
		case tar.TypeSymlink, tar.TypeLink:
			layer.Stats.LinkCount++
		default:
			layer.Stats.OtherCount++
		}
	}

	//the diff ID covers the whole stream (including the end-of-archive padding)
	if _, err := io.Copy(io.Discard, data); err != nil {
		return nil, err
	}

	layer.DiffID = digester.Digest()
	return layer, nil
}

// CheckIntegrity validates the references between the manifest, the image configs,
// the layers and the repository index. All problems are reported together.
func (p *Package) CheckIntegrity() error {
	var problems []error
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	for idx, m := range p.Manifest {
		if entry, ok := p.EntryRefs[m.Config]; !ok {
			fail("image[%d]: missing config - %s", idx, m.Config)
		} else if IsContentAddress(m.Config) && !matchesAddress(m.Config, entry.Digest) {
			fail("image[%d]: config content doesn't match its name - %s (%s)", idx, m.Config, entry.Digest)
		}

		for _, layerName := range m.Layers {
			resolved, err := p.ResolveEntry(layerName)
			if err != nil {
				fail("image[%d]: bad layer reference - %v", idx, err)
				continue
			}

			entry := p.EntryRefs[resolved]
			if IsContentAddress(layerName) && !matchesAddress(layerName, entry.Digest) {
				fail("image[%d]: layer content doesn't match its name - %s (%s)", idx, layerName, entry.Digest)
			}
		}

		config, ok := p.Configs[m.Config]
		if !ok {
			continue
		}

		diffIDs := config.RootFS.DiffIDs
		if len(diffIDs) != len(m.Layers) {
			fail("image[%d]: diff_id count mismatch - %d diff_ids / %d layers", idx, len(diffIDs), len(m.Layers))
			continue
		}

		for lidx, layerName := range m.Layers {
			resolved, err := p.ResolveEntry(layerName)
			if err != nil {
				continue
			}

			if layer, ok := p.Layers[resolved]; ok && layer.DiffID != diffIDs[lidx] {
				fail("image[%d]: layer[%d] diff_id mismatch - %s / %s", idx, lidx, diffIDs[lidx], layer.DiffID)
			}
		}
	}

	if len(p.Manifest) > 0 && p.HasRepoIdx {
		first := p.Manifest[0]
		if repoTag, ok := first.FirstRepoTag(); ok && len(first.Layers) > 0 {
			repo, tag, err := SplitRepoTag(repoTag)
			if err != nil {
				fail("repositories: %v", err)
			} else if p.Repositories[repo][tag] != first.Layers[len(first.Layers)-1] {
				fail("repositories: %s:%s doesn't reference the last layer (%s)", repo, tag, p.Repositories[repo][tag])
			}
		}
	}

	return errors.Join(problems...)
}

func matchesAddress(name string, dgst digest.Digest) bool {
	return path.Base(name) == dgst.String()
}
