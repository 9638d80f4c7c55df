package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/slimtoolkit/imagenorm/pkg/command"
	"github.com/slimtoolkit/imagenorm/pkg/imagecheck"
	"github.com/slimtoolkit/imagenorm/pkg/normalizer"
)

// Command is the common command report data
type Command struct {
	reportLocation string
	Type           command.Type  `json:"type"`
	State          command.State `json:"state"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
}

// ArchiveMetadata provides basic archive file metadata
type ArchiveMetadata struct {
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	SizeHuman string        `json:"size_human"`
	Digest    digest.Digest `json:"digest,omitempty"`
}

// LayerInfo maps a source layer to its normalized blob
type LayerInfo struct {
	Source                string        `json:"source"`
	Name                  string        `json:"name"`
	DiffID                digest.Digest `json:"diff_id"`
	Size                  int64         `json:"size"`
	SizeHuman             string        `json:"size_human"`
	UncompressedSize      int64         `json:"uncompressed_size"`
	UncompressedSizeHuman string        `json:"uncompressed_size_human"`
	Entries               int           `json:"entries"`
	SourceCompression     string        `json:"source_compression"`
}

// ImageInfo maps a source manifest entry to its normalized form
type ImageInfo struct {
	RepoTags     []string     `json:"repo_tags,omitempty"`
	SourceConfig string       `json:"source_config"`
	Config       string       `json:"config"`
	Layers       []*LayerInfo `json:"layers"`
}

// NormalizeCommand is the 'normalize' command report data
type NormalizeCommand struct {
	Command
	SourceArchive ArchiveMetadata              `json:"source_archive"`
	OutputArchive ArchiveMetadata              `json:"output_archive"`
	Compressor    string                       `json:"compressor"`
	Images        []*ImageInfo                 `json:"images,omitempty"`
	Repositories  map[string]map[string]string `json:"repositories,omitempty"`
	Entries       []string                     `json:"entries,omitempty"`
	Verification  *imagecheck.Report           `json:"verification,omitempty"`
}

// VerifyCommand is the 'verify' command report data
type VerifyCommand struct {
	Command
	Archive      ArchiveMetadata    `json:"archive"`
	Verification *imagecheck.Report `json:"verification,omitempty"`
}

// NewNormalizeCommand creates a new 'normalize' command report
func NewNormalizeCommand(reportLocation string) *NormalizeCommand {
	return &NormalizeCommand{
		Command: Command{
			reportLocation: reportLocation,
			Type:           command.Normalize,
			State:          command.StateUnknown,
		},
	}
}

// NewVerifyCommand creates a new 'verify' command report
func NewVerifyCommand(reportLocation string) *VerifyCommand {
	return &VerifyCommand{
		Command: Command{
			reportLocation: reportLocation,
			Type:           command.Verify,
			State:          command.StateUnknown,
		},
	}
}

// NewArchiveMetadata describes the archive file (the size is left empty if it can't be read)
func NewArchiveMetadata(archivePath string) ArchiveMetadata {
	info := ArchiveMetadata{Path: archivePath}
	if fi, err := os.Stat(archivePath); err == nil {
		info.Size = fi.Size()
		info.SizeHuman = humanize.Bytes(uint64(fi.Size()))
	}

	return info
}

// SetResult records the normalization result
func (p *NormalizeCommand) SetResult(result *normalizer.Result) {
	if result == nil {
		return
	}

	p.OutputArchive = ArchiveMetadata{
		Path:      result.ArchivePath,
		Size:      result.ArchiveSize,
		SizeHuman: humanize.Bytes(uint64(result.ArchiveSize)),
		Digest:    result.ArchiveDigest,
	}

	p.Entries = result.Entries
	if result.Summary == nil {
		return
	}

	p.Repositories = result.Repositories
	for _, image := range result.Images {
		info := &ImageInfo{
			RepoTags:     image.RepoTags,
			SourceConfig: image.SourceConfig,
			Config:       image.Config,
		}

		for _, layer := range image.Layers {
			info.Layers = append(info.Layers, &LayerInfo{
				Source:                layer.Source,
				Name:                  layer.Name,
				DiffID:                layer.DiffID,
				Size:                  layer.Size,
				SizeHuman:             humanize.Bytes(uint64(layer.Size)),
				UncompressedSize:      layer.DataSize,
				UncompressedSizeHuman: humanize.Bytes(uint64(layer.DataSize)),
				Entries:               layer.Entries,
				SourceCompression:     string(layer.Compression),
			})
		}

		p.Images = append(p.Images, info)
	}
}

// SetError records the command failure
func (p *Command) SetError(err error, kind string) {
	if err == nil {
		return
	}

	p.State = command.StateError
	p.Error = err.Error()
	p.ErrorKind = kind
}

func (p *Command) ReportLocation() string {
	return p.reportLocation
}

func (p *Command) saveInfo(info interface{}) (bool, error) {
	if p.reportLocation == "" {
		return false, nil
	}

	dirName := filepath.Dir(p.reportLocation)
	baseName := filepath.Base(p.reportLocation)
	if baseName == "." || baseName == string(filepath.Separator) {
		return false, errors.Errorf("bad command report location - %v", p.reportLocation)
	}

	if dirName != "." {
		if err := os.MkdirAll(dirName, 0777); err != nil {
			return false, errors.Wrap(err, "command report directory")
		}
	}

	var reportData bytes.Buffer
	encoder := json.NewEncoder(&reportData)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		return false, errors.Wrap(err, "encode command report")
	}

	if err := os.WriteFile(p.reportLocation, reportData.Bytes(), 0644); err != nil {
		return false, errors.Wrap(err, "write command report")
	}

	return true, nil
}

// Save saves the report data to the configured location
func (p *Command) Save() (bool, error) {
	return p.saveInfo(p)
}

// Save saves the Normalize command report data to the configured location
func (p *NormalizeCommand) Save() (bool, error) {
	return p.saveInfo(p)
}

// Save saves the Verify command report data to the configured location
func (p *VerifyCommand) Save() (bool, error) {
	return p.saveInfo(p)
}
