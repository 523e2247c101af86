package collector

import (
	"path/filepath"

	"github.com/loadstone-ml/loadstone/fs/safetensors"
	"github.com/loadstone-ml/loadstone/logutil"
	"github.com/loadstone-ml/loadstone/ml"
)

// LoadTensor streams a single tensor from its shard: resolve the name
// against the index, open that one file, decode the payload to float32,
// place it on the backend, and convert to the requested precision.
// Resolution happens before any file is opened, and nothing is retained
// between calls.
func LoadTensor(index Index, modelDir, name string, backend ml.Backend, dtype ml.DType) (ml.Tensor, error) {
	file, err := index.Resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := safetensors.Open(filepath.Join(modelDir, file))
	if err != nil {
		return nil, err
	}

	f32s, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, err
	}

	logutil.Trace("read tensor", "name", name, "file", file, "dtype", info.DType, "bytes", info.Size())

	shape := make([]int, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}

	t, err := backend.FromFloats(f32s, shape...)
	if err != nil {
		return nil, err
	}

	return backend.Convert(t, dtype)
}
