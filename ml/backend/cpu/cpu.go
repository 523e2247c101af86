package cpu

import (
	"errors"
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
	"github.com/x448/float16"

	"github.com/loadstone-ml/loadstone/ml"
)

func init() {
	ml.RegisterBackend("cpu", func() (ml.Backend, error) {
		return &Backend{}, nil
	})
}

// Backend keeps weights in host memory as dense float32 tensors. Half
// precision dtypes are honored by rounding values through the requested
// encoding while retaining a float32 compute layout.
type Backend struct{}

func (*Backend) Name() string {
	return "cpu"
}

type Tensor struct {
	dense *tensor.Dense
	f32s  []float32
	dtype ml.DType
}

func (b *Backend) FromFloats(s []float32, shape ...int) (ml.Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("cpu: tensor must have at least one dimension")
	}

	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("cpu: invalid dimension %d in shape %v", dim, shape)
		}
		n *= dim
	}

	if n != len(s) {
		return nil, fmt.Errorf("cpu: shape %v does not fit %d elements", shape, len(s))
	}

	return &Tensor{
		dense: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(s)),
		f32s:  s,
		dtype: ml.DTypeF32,
	}, nil
}

func (b *Backend) Convert(t ml.Tensor, dtype ml.DType) (ml.Tensor, error) {
	if t.DType() == dtype {
		return t, nil
	}

	f32s := t.Floats()
	out := make([]float32, len(f32s))

	switch dtype {
	case ml.DTypeF32:
		copy(out, f32s)
	case ml.DTypeF16:
		for i := range f32s {
			out[i] = float16.Fromfloat32(f32s[i]).Float32()
		}
	case ml.DTypeBF16:
		out = bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(f32s))
	default:
		return nil, fmt.Errorf("cpu: unsupported dtype %s", dtype)
	}

	return &Tensor{
		dense: tensor.New(tensor.WithShape(t.Shape()...), tensor.WithBacking(out)),
		f32s:  out,
		dtype: dtype,
	}, nil
}

func (t *Tensor) Shape() []int {
	return t.dense.Shape()
}

func (t *Tensor) DType() ml.DType {
	return t.dtype
}

func (t *Tensor) Floats() []float32 {
	return t.f32s
}

// Dense exposes the underlying dense tensor for compute collaborators.
func (t *Tensor) Dense() *tensor.Dense {
	return t.dense
}

// Vector returns a flat float32 view of the tensor data.
func (t *Tensor) Vector() ([]float32, error) {
	flat := t.dense.Clone().(*tensor.Dense)
	if err := flat.Reshape(flat.Shape().TotalSize()); err != nil {
		return nil, err
	}

	return native.VectorF32(flat)
}
