package model

import (
	"errors"
	"fmt"

	"github.com/loadstone-ml/loadstone/ml"
)

var ErrLayerOutOfRange = errors.New("layer index out of range")

// LayerElements returns the parameter count of one decoder layer: the
// four attention projections, the three feed-forward projections, and
// the two norm vectors.
func (c *Config) LayerElements() uint64 {
	embd := c.EmbeddingLength()
	kv := c.KVDim()
	ffn := c.FeedForwardLength()

	return 2*embd*embd + 2*embd*kv + 3*embd*ffn + 2*embd
}

// LayerSize returns the byte size of layer i at the given precision.
// The index is validated before any arithmetic.
func (c *Config) LayerSize(i int, dtype ml.DType) (uint64, error) {
	if i < 0 || i >= c.NumLayers() {
		return 0, fmt.Errorf("layer %d of %d: %w", i, c.NumLayers(), ErrLayerOutOfRange)
	}

	return c.LayerElements() * dtype.Size(), nil
}

// LayerSizes returns the byte sizes of every layer at the given
// precision, indexed by layer.
func (c *Config) LayerSizes(dtype ml.DType) []uint64 {
	sizes := make([]uint64, c.NumLayers())
	for i := range sizes {
		sizes[i] = c.LayerElements() * dtype.Size()
	}
	return sizes
}

func (c *Config) EmbeddingSize(dtype ml.DType) uint64 {
	return uint64(c.VocabSize) * c.EmbeddingLength() * dtype.Size()
}

func (c *Config) HeadSize(dtype ml.DType) uint64 {
	return uint64(c.VocabSize) * c.EmbeddingLength() * dtype.Size()
}

func (c *Config) NormSize(dtype ml.DType) uint64 {
	return c.EmbeddingLength() * dtype.Size()
}
