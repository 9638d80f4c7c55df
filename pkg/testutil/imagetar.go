// Package testutil builds synthetic docker-save archives for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
)

// Entry is one tar archive entry
type Entry struct {
	Name       string
	Type       byte
	Data       []byte
	LinkTarget string
	Mode       int64
	ModTime    time.Time
	UID        int
	Uname      string
}

// TarBuilder collects archive entries in the order they are added
type TarBuilder struct {
	ModTime time.Time
	UID     int
	Uname   string
	entries []Entry
}

func NewTarBuilder(modTime time.Time) *TarBuilder {
	return &TarBuilder{ModTime: modTime}
}

func (b *TarBuilder) add(e Entry) *TarBuilder {
	if e.ModTime.IsZero() {
		e.ModTime = b.ModTime
	}

	e.UID = b.UID
	e.Uname = b.Uname
	b.entries = append(b.entries, e)
	return b
}

func (b *TarBuilder) Dir(name string) *TarBuilder {
	return b.add(Entry{Name: name, Type: tar.TypeDir, Mode: 0755})
}

func (b *TarBuilder) File(name string, data []byte) *TarBuilder {
	return b.add(Entry{Name: name, Type: tar.TypeReg, Data: data, Mode: 0644})
}

func (b *TarBuilder) Symlink(name, target string) *TarBuilder {
	return b.add(Entry{Name: name, Type: tar.TypeSymlink, LinkTarget: target, Mode: 0777})
}

func (b *TarBuilder) Hardlink(name, target string) *TarBuilder {
	return b.add(Entry{Name: name, Type: tar.TypeLink, LinkTarget: target, Mode: 0644})
}

func (b *TarBuilder) JSON(name string, v interface{}) *TarBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return b.File(name, data)
}

func (b *TarBuilder) Bytes() []byte {
	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for _, e := range b.entries {
		hdr := &tar.Header{
			Typeflag: e.Type,
			Name:     e.Name,
			Linkname: e.LinkTarget,
			Mode:     e.Mode,
			Uid:      e.UID,
			Uname:    e.Uname,
			ModTime:  e.ModTime,
			Format:   tar.FormatPAX,
		}

		if e.Type == tar.TypeReg {
			hdr.Size = int64(len(e.Data))
		}

		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}

		if len(e.Data) > 0 {
			if _, err := tw.Write(e.Data); err != nil {
				panic(err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		panic(err)
	}

	return out.Bytes()
}

func (b *TarBuilder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0644)
}

// ManifestEntry is the test view of one manifest.json entry
type ManifestEntry struct {
	Config   string
	RepoTags []string `json:",omitempty"`
	Layers   []string
}

// BuildHost holds the build host specific config values
type BuildHost struct {
	Hostname      string
	Container     string
	DockerVersion string
}

// Config returns a docker image config document with volatile fields set
func Config(created, hostname string, diffIDs ...digest.Digest) map[string]interface{} {
	return BuildConfig(created, BuildHost{
		Hostname:      hostname,
		Container:     "3f2c9e2a1b7d",
		DockerVersion: "20.10.7",
	}, diffIDs...)
}

// BuildConfig returns a docker image config document with the given build host values
func BuildConfig(created string, host BuildHost, diffIDs ...digest.Digest) map[string]interface{} {
	ids := []interface{}{}
	history := []interface{}{}
	for _, id := range diffIDs {
		ids = append(ids, id.String())
		history = append(history, map[string]interface{}{
			"created":    created,
			"created_by": "/bin/sh -c #(nop) ADD file in /",
		})
	}

	return map[string]interface{}{
		"architecture":   "amd64",
		"os":             "linux",
		"created":        created,
		"container":      host.Container,
		"docker_version": host.DockerVersion,
		"config": map[string]interface{}{
			"Hostname": host.Hostname,
			"Env":      []interface{}{"PATH=/usr/bin:/bin"},
			"Cmd":      []interface{}{"/bin/sh"},
		},
		"container_config": map[string]interface{}{
			"Hostname": host.Hostname,
			"Cmd":      []interface{}{"/bin/sh", "-c", "#(nop) <b>&</b>"},
		},
		"rootfs": map[string]interface{}{
			"type":     "layers",
			"diff_ids": ids,
		},
		"history": history,
	}
}

// Layer returns an uncompressed layer archive and its diff ID
func Layer(modTime time.Time, build func(b *TarBuilder)) ([]byte, digest.Digest) {
	b := NewTarBuilder(modTime)
	build(b)
	data := b.Bytes()
	return data, digest.FromBytes(data)
}

// WriteImageArchive writes a two layer docker-save archive for one image
// (the second layer.tar is a symlink to the first one when linkLayers is set)
func WriteImageArchive(path string, modTime time.Time, repoTag string, linkLayers bool) error {
	l1, l1DiffID := Layer(modTime, func(b *TarBuilder) {
		b.Dir("etc/").File("etc/os-release", []byte("ID=test\n"))
	})
	l2, l2DiffID := Layer(modTime, func(b *TarBuilder) {
		b.File("app", []byte("#!/bin/sh\necho hello\n"))
	})

	b := NewTarBuilder(modTime)
	b.Dir("l1/").File("l1/layer.tar", l1)
	b.Dir("l2/")
	if linkLayers {
		l2DiffID = l1DiffID
		b.Symlink("l2/layer.tar", "../l1/layer.tar")
	} else {
		b.File("l2/layer.tar", l2)
	}

	entry := ManifestEntry{
		Config: "c.json",
		Layers: []string{"l1/layer.tar", "l2/layer.tar"},
	}

	if repoTag != "" {
		entry.RepoTags = []string{repoTag}
	}

	b.JSON("c.json", Config(modTime.UTC().Format(time.RFC3339), "builder", l1DiffID, l2DiffID))
	b.JSON("manifest.json", []ManifestEntry{entry})
	return b.WriteFile(path)
}

// ReadTar returns the entries of a tar archive
func ReadTar(r io.Reader) ([]Entry, error) {
	var entries []Entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}

		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{
			Name:       hdr.Name,
			Type:       hdr.Typeflag,
			Data:       data,
			LinkTarget: hdr.Linkname,
			Mode:       hdr.Mode,
			ModTime:    hdr.ModTime,
			UID:        hdr.Uid,
			Uname:      hdr.Uname,
		})
	}
}

// ReadTarFile returns the entries of a tar archive file
func ReadTarFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()
	return ReadTar(f)
}
