package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone-ml/loadstone/ml"
	"github.com/loadstone-ml/loadstone/model"
)

func TestLoadTensor(t *testing.T) {
	m := writeModel(t, false)

	backend, err := ml.NewBackend("cpu")
	require.NoError(t, err)

	name := model.LayerTensors(0)[0]
	tr, err := LoadTensor(Index(m.files), m.dir, name, backend, ml.DTypeF32)
	require.NoError(t, err)

	assert.Equal(t, []int{8, 8}, tr.Shape())
	assert.Equal(t, ml.DTypeF32, tr.DType())
	assert.Equal(t, m.values[name], tr.Floats())
}

func TestLoadTensorConvert(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "model.safetensors"), []fixtureTensor{
		{name: "model.norm.weight", shape: []uint64{4}, f32s: []float32{1, 3.14159, -2, 0.5}},
	})

	backend, err := ml.NewBackend("cpu")
	require.NoError(t, err)

	index := Index{"model.norm.weight": "model.safetensors"}

	cases := []struct {
		dtype ml.DType
		want  []float32
	}{
		{ml.DTypeF32, []float32{1, 3.14159, -2, 0.5}},
		{ml.DTypeF16, []float32{1, 3.140625, -2, 0.5}},
		{ml.DTypeBF16, []float32{1, 3.140625, -2, 0.5}},
	}

	for _, tc := range cases {
		t.Run(tc.dtype.String(), func(t *testing.T) {
			tr, err := LoadTensor(index, dir, "model.norm.weight", backend, tc.dtype)
			require.NoError(t, err)
			assert.Equal(t, tc.dtype, tr.DType())
			assert.Equal(t, tc.want, tr.Floats())
		})
	}
}

func TestLoadTensorUnknown(t *testing.T) {
	backend, err := ml.NewBackend("cpu")
	require.NoError(t, err)

	// the only index entry points at a file that does not exist, so any
	// filesystem access fails differently than name resolution
	index := Index{"present.weight": "no-such-file.safetensors"}

	_, err = LoadTensor(index, t.TempDir(), "absent.weight", backend, ml.DTypeF32)
	require.ErrorIs(t, err, ErrUnknownTensor)

	_, err = LoadTensor(index, t.TempDir(), "present.weight", backend, ml.DTypeF32)
	require.ErrorIs(t, err, os.ErrNotExist)
}
