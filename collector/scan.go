package collector

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/loadstone-ml/loadstone/fs/safetensors"
)

var (
	ErrNoShards      = errors.New("no shard files found")
	ErrUnknownTensor = errors.New("unknown tensor")
)

// shardPatterns lists the file patterns tried in order when indexing a
// model directory.
var shardPatterns = []string{
	"model-*-of-*.safetensors",
	"model.safetensors",
}

// Index maps full tensor names to the shard file, relative to the model
// directory, that stores them. Immutable once built.
type Index map[string]string

// Resolve returns the shard file holding name.
func (idx Index) Resolve(name string) (string, error) {
	file, ok := idx[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownTensor)
	}
	return file, nil
}

// ShardsFor returns the sorted set of shard files needed by tensors
// whose names begin with prefix.
func (idx Index) ShardsFor(prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	for name, file := range idx {
		if strings.HasPrefix(name, prefix) {
			seen[file] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("%q: %w", prefix, ErrUnknownTensor)
	}

	files := maps.Keys(seen)
	slices.Sort(files)
	return files, nil
}

// buildIndex scans the shard headers in dir and maps every tensor name
// to its file. Only headers are read; no payload bytes are touched.
func buildIndex(dir, pattern string) (Index, []string, error) {
	patterns := shardPatterns
	if pattern != "" {
		patterns = []string{pattern}
	}

	var matches []string
	for _, p := range patterns {
		m, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return nil, nil, err
		}

		if len(m) > 0 {
			matches = m
			break
		}
	}

	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", dir, ErrNoShards)
	}

	slices.Sort(matches)

	index := make(Index)
	for _, match := range matches {
		f, err := safetensors.Open(match)
		if err != nil {
			return nil, nil, err
		}

		base := filepath.Base(match)
		for _, info := range f.Tensors() {
			if prev, ok := index[info.Name]; ok {
				return nil, nil, fmt.Errorf("duplicate tensor %q in %s and %s", info.Name, prev, base)
			}
			index[info.Name] = base
		}
	}

	return index, matches, nil
}
