// Package cache persists the result of scanning a model directory so
// later runs skip rereading every shard header.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrNotFound = errors.New("layer cache not found")
	ErrCorrupt  = errors.New("layer cache corrupt")
)

// Record is the serialized form of one model directory's scan: which
// shard file holds each tensor, and the byte size of every layer. The
// on-disk record is authoritative once written; it is never silently
// regenerated.
type Record struct {
	// LayerFiles maps full tensor names to shard file names relative to
	// the model directory.
	LayerFiles map[string]string `json:"layer_files"`

	// LayerSizes holds the byte size of each layer, indexed by layer.
	LayerSizes []uint64 `json:"layer_sizes"`

	NumLayers int `json:"num_layers"`
}

func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}

	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}

	return &rec, nil
}

func (r *Record) validate() error {
	if len(r.LayerFiles) == 0 {
		return errors.New("no tensor entries")
	}

	if len(r.LayerSizes) == 0 {
		return errors.New("no layer sizes")
	}

	if r.NumLayers != len(r.LayerSizes) {
		return fmt.Errorf("num_layers %d does not match %d layer sizes", r.NumLayers, len(r.LayerSizes))
	}

	for i, size := range r.LayerSizes {
		if size == 0 {
			return fmt.Errorf("layer %d has zero size", i)
		}
	}

	return nil
}

// Store writes rec to path atomically: encode into a temp file in the
// destination directory, then rename over path. Readers never observe a
// partial record.
func Store(path string, rec *Record) error {
	if err := rec.validate(); err != nil {
		return fmt.Errorf("layer cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "layers-*.json")
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}

	if err := os.Chmod(f.Name(), 0o644); err != nil {
		_ = os.Remove(f.Name())
		return err
	}

	return os.Rename(f.Name(), path)
}
