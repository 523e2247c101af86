// Package model describes decoder-style checkpoints: the config.json
// metadata, the tensor naming scheme, and the analytic per-component
// byte sizes derived from both.
package model

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loadstone-ml/loadstone/ml"
)

// Config is the metadata read from config.json in a model directory.
// Fields cover the common checkpoint spellings; accessors apply the
// fallback chains. Immutable after Load.
type Config struct {
	Architectures []string `json:"architectures"`

	NLayers         uint32 `json:"n_layers"`
	NumHiddenLayers uint32 `json:"num_hidden_layers"`
	NLayer          uint32 `json:"n_layer"`

	HiddenSize uint32 `json:"hidden_size"`
	NEmbd      uint32 `json:"n_embd"`

	IntermediateSize uint32 `json:"intermediate_size"`
	NInner           uint32 `json:"n_inner"`

	NumAttentionHeads uint32 `json:"num_attention_heads"`
	NHead             uint32 `json:"n_head"`

	NumKeyValueHeads uint32 `json:"num_key_value_heads"`

	MaxPositionEmbeddings uint32 `json:"max_position_embeddings"`
	NCtx                  uint32 `json:"n_ctx"`

	VocabSize         uint32  `json:"vocab_size"`
	RMSNormEPS        float32 `json:"rms_norm_eps"`
	RopeTheta         float32 `json:"rope_theta"`
	TorchDtype        string  `json:"torch_dtype"`
	TieWordEmbeddings bool    `json:"tie_word_embeddings"`
}

func Load(dir string) (*Config, error) {
	f, err := os.Open(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	defer f.Close()

	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}

	if c.NumLayers() == 0 {
		return nil, errors.New("model config: missing layer count")
	}

	if c.EmbeddingLength() == 0 {
		return nil, errors.New("model config: missing hidden size")
	}

	if c.HeadCount() == 0 {
		return nil, errors.New("model config: missing attention head count")
	}

	if c.TorchDtype != "" {
		if _, err := ml.ParseDType(c.TorchDtype); err != nil {
			slog.Warn("ignoring unsupported torch_dtype", "torch_dtype", c.TorchDtype)
			c.TorchDtype = ""
		}
	}

	return &c, nil
}

func (c *Config) NumLayers() int {
	return int(cmp.Or(c.NumHiddenLayers, c.NLayers, c.NLayer))
}

func (c *Config) EmbeddingLength() uint64 {
	return uint64(cmp.Or(c.HiddenSize, c.NEmbd))
}

func (c *Config) FeedForwardLength() uint64 {
	return uint64(cmp.Or(c.IntermediateSize, c.NInner))
}

func (c *Config) HeadCount() uint64 {
	return uint64(cmp.Or(c.NumAttentionHeads, c.NHead))
}

func (c *Config) HeadCountKV() uint64 {
	return uint64(cmp.Or(c.NumKeyValueHeads, c.NumAttentionHeads, c.NHead))
}

func (c *Config) ContextLength() uint64 {
	return uint64(cmp.Or(c.MaxPositionEmbeddings, c.NCtx))
}

// HeadDim returns the per-head embedding width.
func (c *Config) HeadDim() uint64 {
	return c.EmbeddingLength() / c.HeadCount()
}

// KVDim returns the total width of the key and value projections.
func (c *Config) KVDim() uint64 {
	return c.HeadCountKV() * c.HeadDim()
}

// DefaultDType returns the storage precision declared by the checkpoint,
// or F32 when the checkpoint does not declare one.
func (c *Config) DefaultDType() ml.DType {
	if c.TorchDtype == "" {
		return ml.DTypeF32
	}

	t, err := ml.ParseDType(c.TorchDtype)
	if err != nil {
		return ml.DTypeF32
	}
	return t
}
