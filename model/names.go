package model

import "fmt"

// Non-repeating tensor names.
const (
	TensorEmbedding = "model.embed_tokens.weight"
	TensorHead      = "lm_head.weight"
	TensorFinalNorm = "model.norm.weight"
)

// layerSuffixes lists the per-layer tensors in architecture order:
// attention projections, feed-forward projections, then the two norms.
var layerSuffixes = []string{
	"self_attn.q_proj.weight",
	"self_attn.k_proj.weight",
	"self_attn.v_proj.weight",
	"self_attn.o_proj.weight",
	"mlp.gate_proj.weight",
	"mlp.up_proj.weight",
	"mlp.down_proj.weight",
	"input_layernorm.weight",
	"post_attention_layernorm.weight",
}

// LayerPrefix returns the name prefix shared by every tensor of layer i.
func LayerPrefix(i int) string {
	return fmt.Sprintf("model.layers.%d.", i)
}

// LayerTensors returns the full tensor names of layer i in architecture
// order.
func LayerTensors(i int) []string {
	names := make([]string, len(layerSuffixes))
	for j, suffix := range layerSuffixes {
		names[j] = LayerPrefix(i) + suffix
	}
	return names
}
