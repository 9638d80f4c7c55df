package normalizer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/docker/dockerimage"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/util/jsonutil"
)

// ImageSummary describes one normalized manifest entry
type ImageSummary struct {
	RepoTags     []string        `json:"repo_tags,omitempty"`
	SourceConfig string          `json:"source_config"`
	Config       string          `json:"config"`
	Layers       []*LayerResult  `json:"layers"`
	DiffIDs      []digest.Digest `json:"diff_ids"`
}

// Summary describes a rewritten workspace
type Summary struct {
	Images       []*ImageSummary                `json:"images"`
	Repositories dockerimage.RepositoriesObject `json:"repositories,omitempty"`
}

// Rewrite normalizes every image in the manifest of the extracted archive
// and rewrites the manifest and the repository index to reference the new names.
func (n *Normalizer) Rewrite(ctx context.Context, root string) (*Summary, error) {
	const op = "normalizer.Rewrite"
	manifestPath := filepath.Join(root, dockerimage.ManifestFileName)
	dataPath, err := securejoin.SecureJoin(root, dockerimage.ManifestFileName)
	if err != nil {
		return nil, errs.E(errs.KindFilesystem, op, dockerimage.ManifestFileName, err)
	}

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.ManifestFileName, errors.New("missing manifest"))
		}

		return nil, errs.E(errs.KindFilesystem, op, dockerimage.ManifestFileName, err)
	}

	var manifest []dockerimage.ManifestObject
	if err := jsonutil.Decode(bytes.NewReader(raw), &manifest); err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.ManifestFileName, errors.Wrap(err, "malformed manifest"))
	}

	summary := &Summary{}
	//images can share layers and configs
	layers := map[string]*LayerResult{}
	configs := map[string]string{}

	for idx := range manifest {
		image := &manifest[idx]
		logger := log.WithFields(log.Fields{
			"op":     op,
			"image":  idx,
			"config": image.Config,
		})

		imageSummary := &ImageSummary{
			RepoTags:     image.RepoTags,
			SourceConfig: image.Config,
			Layers:       make([]*LayerResult, len(image.Layers)),
			DiffIDs:      make([]digest.Digest, len(image.Layers)),
		}

		newLayers := make([]string, len(image.Layers))
		//bottom-most layer first: a layer.tar can be a symlink to a layer that comes before it
		for lidx := len(image.Layers) - 1; lidx >= 0; lidx-- {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "normalization interrupted")
			}

			name := image.Layers[lidx]
			result, ok := layers[name]
			if !ok {
				result, err = n.NormalizeLayer(ctx, root, name)
				if err != nil {
					return nil, err
				}

				layers[name] = result
			}

			newLayers[lidx] = result.Name
			imageSummary.Layers[lidx] = result
			imageSummary.DiffIDs[lidx] = result.DiffID
		}

		newConfig, ok := configs[image.Config]
		if !ok {
			newConfig, err = n.NormalizeConfig(root, image.Config, imageSummary.DiffIDs)
			if err != nil {
				return nil, err
			}

			configs[image.Config] = newConfig
		}

		logger.Debugf("image normalized - config=%s layers=%d", newConfig, len(newLayers))

		image.Config = newConfig
		image.Layers = newLayers
		imageSummary.Config = newConfig
		summary.Images = append(summary.Images, imageSummary)
	}

	data, err := jsonutil.Canonical(manifest)
	if err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.ManifestFileName, err)
	}

	if err := writeFile(manifestPath, data); err != nil {
		return nil, errs.E(errs.KindFilesystem, op, dockerimage.ManifestFileName, err)
	}

	repositories, err := writeRepositories(root, manifest)
	if err != nil {
		return nil, err
	}

	summary.Repositories = repositories
	return summary, nil
}

// writeRepositories rebuilds the legacy repository index from the first manifest entry.
// The index is left alone when the manifest is empty and removed if the first entry has no tags.
func writeRepositories(root string, manifest []dockerimage.ManifestObject) (dockerimage.RepositoriesObject, error) {
	const op = "normalizer.writeRepositories"
	if len(manifest) == 0 {
		return nil, nil
	}

	reposPath := filepath.Join(root, dockerimage.RepositoriesFileName)
	first := manifest[0]
	repoTag, ok := first.FirstRepoTag()
	if !ok {
		log.Debugf("%s: first image is not tagged, removing the repository index", op)
		if err := os.Remove(reposPath); err != nil && !os.IsNotExist(err) {
			return nil, errs.E(errs.KindFilesystem, op, dockerimage.RepositoriesFileName, err)
		}

		return nil, nil
	}

	if len(first.Layers) == 0 {
		return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.RepositoriesFileName,
			errors.Errorf("tagged image without layers - %s", repoTag))
	}

	repo, tag, err := dockerimage.SplitRepoTag(repoTag)
	if err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.RepositoriesFileName, err)
	}

	repositories := dockerimage.RepositoriesObject{
		repo: {tag: first.Layers[len(first.Layers)-1]},
	}

	data, err := jsonutil.Canonical(repositories)
	if err != nil {
		return nil, errs.E(errs.KindArchiveFormat, op, dockerimage.RepositoriesFileName, err)
	}

	if err := writeFile(reposPath, data); err != nil {
		return nil, errs.E(errs.KindFilesystem, op, dockerimage.RepositoriesFileName, err)
	}

	return repositories, nil
}
