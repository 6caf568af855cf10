// Package modelregistry enumerates model files available to a worker.
package modelregistry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/user0131/llamapool/config"
)

// DefaultSuffix is the model-file extension the registry scans for.
const DefaultSuffix = ".gguf"

// ModelDescriptor describes one discoverable model file. Equality is
// by Path; two descriptors with the same Path are considered the same
// model even if Name or SizeBytes were read at different times.
type ModelDescriptor struct {
	Name      string
	Path      string
	SizeBytes uint64
}

// Equal reports whether two descriptors refer to the same model file.
func (m ModelDescriptor) Equal(other ModelDescriptor) bool {
	return m.Path == other.Path
}

// ListModels scans dir non-recursively for regular files ending in
// suffix and returns one ModelDescriptor per match. Ordering matches
// the underlying directory read and is stable within a single call,
// but is not otherwise specified.
func ListModels(dir, suffix string) ([]ModelDescriptor, error) {
	if suffix == "" {
		suffix = DefaultSuffix
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, config.ConfigErrorf("モデルディレクトリが存在しません: %s", dir)
	}
	if !info.IsDir() {
		return nil, config.ConfigErrorf("モデルディレクトリが存在しません: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, config.ConfigErrorf("モデルディレクトリを読み込めません: %s: %v", dir, err)
	}

	var models []ModelDescriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, ModelDescriptor{
			Name:      name,
			Path:      filepath.Join(dir, name),
			SizeBytes: uint64(fi.Size()),
		})
	}

	return models, nil
}

// Lookup finds the descriptor for the given model name within dir,
// used by the worker to resolve request.model into a filesystem path.
func Lookup(dir, suffix, name string) (ModelDescriptor, bool, error) {
	models, err := ListModels(dir, suffix)
	if err != nil {
		return ModelDescriptor{}, false, err
	}
	for _, m := range models {
		if m.Name == name {
			return m, true, nil
		}
	}
	return ModelDescriptor{}, false, nil
}
