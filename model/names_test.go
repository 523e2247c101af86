package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerTensors(t *testing.T) {
	names := LayerTensors(3)
	require.Len(t, names, 9)

	// attention, feed forward, then norms
	assert.Equal(t, []string{
		"model.layers.3.self_attn.q_proj.weight",
		"model.layers.3.self_attn.k_proj.weight",
		"model.layers.3.self_attn.v_proj.weight",
		"model.layers.3.self_attn.o_proj.weight",
		"model.layers.3.mlp.gate_proj.weight",
		"model.layers.3.mlp.up_proj.weight",
		"model.layers.3.mlp.down_proj.weight",
		"model.layers.3.input_layernorm.weight",
		"model.layers.3.post_attention_layernorm.weight",
	}, names)

	for _, name := range names {
		assert.True(t, strings.HasPrefix(name, LayerPrefix(3)))
	}
}

func TestLayerPrefixDistinct(t *testing.T) {
	// layer 1 must not prefix-match layer 10
	assert.False(t, strings.HasPrefix(LayerPrefix(10), LayerPrefix(1)))
}
