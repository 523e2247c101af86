// Package collector streams transformer layers from sharded safetensors
// checkpoints under a caller-supplied memory budget. A Collector indexes
// the shards of one model directory once, persists the index, and then
// materializes contiguous layer windows on demand.
package collector

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/loadstone-ml/loadstone/cache"
	"github.com/loadstone-ml/loadstone/envconfig"
	"github.com/loadstone-ml/loadstone/format"
	"github.com/loadstone-ml/loadstone/logutil"
	"github.com/loadstone-ml/loadstone/ml"
	_ "github.com/loadstone-ml/loadstone/ml/backend/cpu"
	"github.com/loadstone-ml/loadstone/model"
	"github.com/loadstone-ml/loadstone/version"
)

var ErrModelDirNotFound = errors.New("model directory not found")

type Collector struct {
	modelDir  string
	cachePath string
	pattern   string
	device    string

	config  *model.Config
	index   Index
	sizes   []uint64
	backend ml.Backend

	dtype    ml.DType
	hasDType bool

	asm    ml.Assembler
	logger *slog.Logger
}

type Option func(*Collector)

// WithShardPattern overrides the glob used to find shard files.
func WithShardPattern(pattern string) Option {
	return func(c *Collector) {
		c.pattern = pattern
	}
}

// WithDevice selects the backend weights are placed on. Defaults to
// "cpu".
func WithDevice(device string) Option {
	return func(c *Collector) {
		c.device = device
	}
}

// WithDType sets the precision tensors are converted to on load.
// Defaults to the precision the checkpoint declares.
func WithDType(dtype ml.DType) Option {
	return func(c *Collector) {
		c.dtype = dtype
		c.hasDType = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithAssembler attaches the compute runtime's module constructor.
// Materialized weight sets are handed to it and the produced modules
// returned alongside the weights.
func WithAssembler(asm ml.Assembler) Option {
	return func(c *Collector) {
		c.asm = asm
	}
}

// New indexes the model at modelDir, loading the layer cache at
// cachePath when one exists and building then persisting it otherwise.
// An empty cachePath stores the cache under the user cache directory.
func New(modelDir, cachePath string, opts ...Option) (*Collector, error) {
	c := &Collector{
		modelDir:  modelDir,
		cachePath: cachePath,
		pattern:   envconfig.ShardPattern(),
		device:    "cpu",
		logger:    defaultLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	info, err := os.Stat(modelDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", modelDir, ErrModelDirNotFound)
		}
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", modelDir, ErrModelDirNotFound)
	}

	c.config, err = model.Load(modelDir)
	if err != nil {
		return nil, err
	}

	if !c.hasDType {
		c.dtype = c.config.DefaultDType()
	}

	if c.cachePath == "" {
		c.cachePath = defaultCachePath(modelDir)
	}

	rec, err := cache.Load(c.cachePath)
	switch {
	case err == nil:
		if rec.NumLayers != c.config.NumLayers() {
			return nil, fmt.Errorf("%s: %w: cached num_layers %d does not match model %d",
				c.cachePath, cache.ErrCorrupt, rec.NumLayers, c.config.NumLayers())
		}

		c.index = Index(rec.LayerFiles)
		c.sizes = rec.LayerSizes
		c.logger.Debug("layer cache hit", "path", c.cachePath, "tensors", len(c.index), "layers", rec.NumLayers)
	case errors.Is(err, cache.ErrNotFound):
		if err := c.build(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	c.backend, err = ml.NewBackend(c.device)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("layer collector ready",
		"version", version.Version,
		"dir", c.modelDir,
		"device", c.backend.Name(),
		"dtype", c.dtype)

	return c, nil
}

// build scans the shard headers, derives the layer size table at the
// checkpoint's declared precision, and persists both before any of them
// are used. Nothing is written when the scan fails.
func (c *Collector) build() error {
	index, shards, err := buildIndex(c.modelDir, c.pattern)
	if err != nil {
		return err
	}

	sizes := c.config.LayerSizes(c.config.DefaultDType())

	rec := &cache.Record{
		LayerFiles: index,
		LayerSizes: sizes,
		NumLayers:  c.config.NumLayers(),
	}

	if err := cache.Store(c.cachePath, rec); err != nil {
		return err
	}

	c.index = index
	c.sizes = sizes

	var total uint64
	for _, size := range sizes {
		total += size
	}

	c.logger.Info("indexed model",
		"dir", c.modelDir,
		"shards", len(shards),
		"tensors", len(index),
		"layers", len(sizes),
		"layer_weights", format.HumanBytes2(total))

	return nil
}

// LoadedLayer is one materialized decoder layer: its weights on the
// target device and, when an Assembler is configured, the module built
// from them. The caller owns the layer; nothing is retained after the
// returning call.
type LoadedLayer struct {
	Index   int
	Weights ml.WeightSet
	Module  ml.Module
}

// LoadedModule is a materialized non-repeating component such as the
// embedding table, the output head, or the final norm.
type LoadedModule struct {
	Weights ml.WeightSet
	Module  ml.Module
}

// Layers materializes the half-open layer range [start, end): eagerly,
// in order, failing on the first tensor that cannot be loaded. Each
// layer's tensors are loaded in architecture order.
func (c *Collector) Layers(start, end int) ([]LoadedLayer, error) {
	if start < 0 || end > c.config.NumLayers() || start > end {
		return nil, fmt.Errorf("layers [%d,%d) of %d: %w", start, end, c.config.NumLayers(), model.ErrLayerOutOfRange)
	}

	layers := make([]LoadedLayer, 0, end-start)
	for i := start; i < end; i++ {
		names := model.LayerTensors(i)

		ws := make(ml.WeightSet, len(names))
		for _, name := range names {
			t, err := LoadTensor(c.index, c.modelDir, name, c.backend, c.dtype)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			ws[name] = t
		}

		layer := LoadedLayer{Index: i, Weights: ws}
		if c.asm != nil {
			mod, err := c.asm.Layer(i, ws)
			if err != nil {
				return nil, fmt.Errorf("assemble layer %d: %w", i, err)
			}
			layer.Module = mod
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

// InputEmbedding materializes the token embedding table.
func (c *Collector) InputEmbedding() (*LoadedModule, error) {
	return c.loadModule(model.TensorEmbedding, ml.Assembler.Embedding)
}

// Head materializes the output projection. Checkpoints with tied word
// embeddings carry no head tensor; the embedding table is loaded in its
// place.
func (c *Collector) Head() (*LoadedModule, error) {
	name := model.TensorHead
	if _, err := c.index.Resolve(name); err != nil {
		name = model.TensorEmbedding
	}

	return c.loadModule(name, ml.Assembler.Head)
}

// Norm materializes the final output norm.
func (c *Collector) Norm() (*LoadedModule, error) {
	return c.loadModule(model.TensorFinalNorm, ml.Assembler.Norm)
}

func (c *Collector) loadModule(name string, assemble func(ml.Assembler, ml.WeightSet) (ml.Module, error)) (*LoadedModule, error) {
	t, err := LoadTensor(c.index, c.modelDir, name, c.backend, c.dtype)
	if err != nil {
		return nil, err
	}

	lm := &LoadedModule{Weights: ml.WeightSet{name: t}}
	if c.asm != nil {
		mod, err := assemble(c.asm, lm.Weights)
		if err != nil {
			return nil, fmt.Errorf("assemble %s: %w", name, err)
		}
		lm.Module = mod
	}

	return lm, nil
}

// ReadCache rereads the cache record from disk. A record removed after
// construction is reported as missing, not rebuilt.
func (c *Collector) ReadCache() (*cache.Record, error) {
	return cache.Load(c.cachePath)
}

func (c *Collector) Config() *model.Config {
	return c.config
}

func (c *Collector) NumLayers() int {
	return c.config.NumLayers()
}

// LayerSizes returns a copy of the per-layer byte size table.
func (c *Collector) LayerSizes() []uint64 {
	return slices.Clone(c.sizes)
}

// Index returns a copy of the tensor name to shard file index.
func (c *Collector) Index() Index {
	return maps.Clone(c.index)
}

func (c *Collector) ModelDir() string {
	return c.modelDir
}

func (c *Collector) CachePath() string {
	return c.cachePath
}

func defaultLogger() *slog.Logger {
	if envconfig.Debug() {
		return logutil.NewLogger(os.Stderr, slog.LevelDebug)
	}
	return slog.Default()
}

// defaultCachePath places the cache under the user cache directory,
// keyed by the model directory's name plus a hash of its absolute path
// so distinct models with the same name do not collide.
func defaultCachePath(modelDir string) string {
	abs, err := filepath.Abs(modelDir)
	if err != nil {
		abs = modelDir
	}

	sum := sha256.Sum256([]byte(abs))
	name := fmt.Sprintf("%s-%x.json", filepath.Base(abs), sum[:4])

	return filepath.Join(envconfig.CacheDir(), name)
}
