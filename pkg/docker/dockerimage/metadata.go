package dockerimage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/slimtoolkit/imagenorm/pkg/util/jsonutil"
)

func IsDeletedFileObject(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, WhiteoutPrefix)
}

const (
	manifestConfigKey   = "Config"
	manifestRepoTagsKey = "RepoTags"
	manifestLayersKey   = "Layers"
)

// ManifestObject is one image entry in manifest.json.
// Fields the tool doesn't know about are kept in Extra and written back as-is.
type ManifestObject struct {
	Config   string   //"IMAGE_ID.json" or "sha256:..."
	RepoTags []string //["user/repo:tag"]
	Layers   []string //"LAYER_ID/layer.tar" or "sha256:..."
	Extra    map[string]interface{}

	hasRepoTags bool
}

func (m *ManifestObject) UnmarshalJSON(data []byte) error {
	var fields map[string]interface{}
	if err := jsonutil.Decode(bytes.NewReader(data), &fields); err != nil {
		return err
	}

	if fields == nil {
		return fmt.Errorf("manifest entry is not an object")
	}

	out := ManifestObject{Extra: map[string]interface{}{}}
	for key, value := range fields {
		switch key {
		case manifestConfigKey:
			config, ok := value.(string)
			if !ok {
				return fmt.Errorf("manifest entry %q is not a string", key)
			}

			out.Config = config
		case manifestLayersKey:
			layers, err := stringList(key, value)
			if err != nil {
				return err
			}

			out.Layers = layers
		case manifestRepoTagsKey:
			tags, err := stringList(key, value)
			if err != nil {
				return err
			}

			out.RepoTags = tags
			out.hasRepoTags = true
		default:
			out.Extra[key] = value
		}
	}

	*m = out
	return nil
}

func (m ManifestObject) MarshalJSON() ([]byte, error) {
	fields := map[string]interface{}{}
	for key, value := range m.Extra {
		fields[key] = value
	}

	fields[manifestConfigKey] = m.Config

	layers := m.Layers
	if layers == nil {
		layers = []string{}
	}
	fields[manifestLayersKey] = layers

	if m.hasRepoTags || len(m.RepoTags) > 0 {
		fields[manifestRepoTagsKey] = m.RepoTags
	}

	return json.Marshal(fields)
}

// FirstRepoTag returns the first repo tag of the image (if it has any)
func (m *ManifestObject) FirstRepoTag() (string, bool) {
	if len(m.RepoTags) == 0 {
		return "", false
	}

	return m.RepoTags[0], true
}

func stringList(key string, value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}

	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("manifest entry %q is not a list", key)
	}

	list := make([]string, 0, len(items))
	for idx, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("manifest entry %q[%d] is not a string", key, idx)
		}

		list = append(list, str)
	}

	return list, nil
}

// RepositoriesObject is the legacy 'repositories' index:
// repository -> tag -> layer ID
type RepositoriesObject map[string]map[string]string

// SplitRepoTag splits "repo:tag" at the last tag separator,
// so registry host ports stay in the repository name
func SplitRepoTag(repoTag string) (string, string, error) {
	idx := strings.LastIndex(repoTag, TagSeparator)
	if idx <= 0 || idx == len(repoTag)-1 || strings.Contains(repoTag[idx+1:], "/") {
		return "", "", fmt.Errorf("malformed repo tag - %q", repoTag)
	}

	return repoTag[:idx], repoTag[idx+1:], nil
}

// IsContentAddress returns true if the base name of the path is 'sha256:<hex>'
func IsContentAddress(path string) bool {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, ContentAddressPrefix) {
		return false
	}

	hex := name[len(ContentAddressPrefix):]
	if len(hex) != 64 {
		return false
	}

	for _, ch := range hex {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return false
		}
	}

	return true
}

//consts from https://github.com/moby/moby/blob/master/pkg/archive/whiteouts.go

// WhiteoutPrefix prefix means file is a whiteout. If this is followed by a
// filename this means that file has been removed from the base layer.
const WhiteoutPrefix = ".wh."

// WhiteoutMetaPrefix prefix means whiteout has a special meaning and is not
// for removing an actual file. Normally these files are excluded from exported
// archives.
const WhiteoutMetaPrefix = WhiteoutPrefix + WhiteoutPrefix

// WhiteoutOpaqueDir file means directory has been made opaque - meaning
// readdir calls to this directory do not follow to lower layers.
const WhiteoutOpaqueDir = WhiteoutMetaPrefix + ".opq"

// LayerStats summarizes the objects in a layer archive
type LayerStats struct {
	AllSize      uint64 `json:"all_size"`
	ObjectCount  uint64 `json:"object_count"`
	DirCount     uint64 `json:"dir_count"`
	FileCount    uint64 `json:"file_count"`
	LinkCount    uint64 `json:"link_count"`
	OtherCount   uint64 `json:"other_count,omitempty"`
	DeletedCount uint64 `json:"deleted_count"`
	OpaqueCount  uint64 `json:"opaque_count,omitempty"`
}
