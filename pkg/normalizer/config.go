package normalizer

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/util/fsutil"
	"github.com/slimtoolkit/imagenorm/pkg/util/jsonutil"
)

// image config keys
const (
	configCreatedKey       = "created"
	configRootFSKey        = "rootfs"
	configDiffIDsKey       = "diff_ids"
	configHistoryKey       = "history"
	configContainerKey     = "container"
	configDockerVersionKey = "docker_version"
	configConfigKey        = "config"
	configContainerCfgKey  = "container_config"
	configHostnameKey      = "Hostname"
)

// VolatileConfigKeys are the top level config keys that depend on the build host
var VolatileConfigKeys = []string{
	configContainerKey,
	configDockerVersionKey,
}

// VolatileContainerConfigKeys are the keys removed from the 'config' and 'container_config' sections
var VolatileContainerConfigKeys = []string{
	configHostnameKey,
}

// NormalizeConfig rewrites the image config with fixed timestamps and the new layer diff IDs,
// without the build host specific fields, and stores it as 'sha256:<digest>' in the same directory.
// It returns the slash separated path of the new config relative to root.
func (n *Normalizer) NormalizeConfig(root, configName string, diffIDs []digest.Digest) (string, error) {
	const op = "normalizer.NormalizeConfig"
	configRel := path.Clean(configName)
	if path.IsAbs(configRel) || configRel == "." || configRel == ".." || strings.HasPrefix(configRel, "../") {
		return "", errs.E(errs.KindArchiveFormat, op, configName, errors.New("bad config reference"))
	}

	holderPath := filepath.Join(root, filepath.FromSlash(configRel))
	if !fsutil.IsWithin(root, holderPath) || holderPath == filepath.Clean(root) {
		return "", errs.E(errs.KindArchiveFormat, op, configName,
			errors.New("config is outside of the workspace"))
	}
	dataPath, err := securejoin.SecureJoin(root, configRel)
	if err != nil {
		return "", errs.E(errs.KindFilesystem, op, configName, err)
	}

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.E(errs.KindArchiveFormat, op, configName, errors.Wrap(err, "missing config"))
		}

		return "", errs.E(errs.KindFilesystem, op, configName, err)
	}

	data, err := normalizeConfigData(raw, diffIDs)
	if err != nil {
		return "", errs.E(errs.KindConfigIntegrity, op, configName, err)
	}

	newPath := filepath.Join(filepath.Dir(holderPath), digest.FromBytes(data).String())
	if err := writeFile(newPath, data); err != nil {
		return "", errs.E(errs.KindFilesystem, op, configName, err)
	}

	if newPath != holderPath {
		if err := fsutil.Remove(holderPath); err != nil {
			return "", errs.E(errs.KindFilesystem, op, configName, err)
		}
	}

	newName, err := fsutil.RelPath(root, newPath)
	if err != nil {
		return "", errs.E(errs.KindFilesystem, op, configName, err)
	}

	log.WithFields(log.Fields{
		"op":     op,
		"config": configName,
		"name":   newName,
	}).Debug("config normalized")

	return newName, nil
}

func normalizeConfigData(raw []byte, diffIDs []digest.Digest) ([]byte, error) {
	var config map[string]interface{}
	if err := jsonutil.Decode(bytes.NewReader(raw), &config); err != nil {
		return nil, errors.Wrap(err, "malformed config")
	}

	if config == nil {
		return nil, errors.New("config is not an object")
	}

	rootfs, ok := config[configRootFSKey].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("missing or malformed '%s'", configRootFSKey)
	}

	var current []interface{}
	if value, found := rootfs[configDiffIDsKey]; found && value != nil {
		if current, ok = value.([]interface{}); !ok {
			return nil, errors.Errorf("malformed '%s.%s'", configRootFSKey, configDiffIDsKey)
		}
	}

	if len(current) != len(diffIDs) {
		return nil, errors.Errorf("diff_id count mismatch - config has %d, image has %d layers",
			len(current), len(diffIDs))
	}

	ids := make([]interface{}, 0, len(diffIDs))
	for _, id := range diffIDs {
		ids = append(ids, id.String())
	}

	rootfs[configDiffIDsKey] = ids
	config[configCreatedKey] = ConfigCreated

	for _, key := range VolatileConfigKeys {
		delete(config, key)
	}

	for _, section := range []string{configConfigKey, configContainerCfgKey} {
		if fields, ok := config[section].(map[string]interface{}); ok {
			for _, key := range VolatileContainerConfigKeys {
				delete(fields, key)
			}
		}
	}

	if value, found := config[configHistoryKey]; found && value != nil {
		history, ok := value.([]interface{})
		if !ok {
			return nil, errors.Errorf("malformed '%s'", configHistoryKey)
		}

		for idx, item := range history {
			record, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("malformed '%s[%d]'", configHistoryKey, idx)
			}

			record[configCreatedKey] = ConfigCreated
		}
	}

	return jsonutil.Canonical(config)
}

// writeFile replaces the target file with the data
// (the data is written to a temporary file in the same directory first)
func writeFile(target string, data []byte) error {
	tf, err := os.CreateTemp(filepath.Dir(target), ".imagenorm-*")
	if err != nil {
		return err
	}

	if _, err := tf.Write(data); err != nil {
		tf.Close()
		os.Remove(tf.Name())
		return err
	}

	if err := tf.Close(); err != nil {
		os.Remove(tf.Name())
		return err
	}

	if err := os.Chmod(tf.Name(), 0644); err != nil {
		os.Remove(tf.Name())
		return err
	}

	return os.Rename(tf.Name(), target)
}
