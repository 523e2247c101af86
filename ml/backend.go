package ml

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
)

// DType identifies the numeric precision of tensor elements.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
)

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// Size returns the width in bytes of a single element.
func (t DType) Size() uint64 {
	switch t {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

// ParseDType maps the precision names found in model metadata and
// environment settings to a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", "f32", "F32":
		return DTypeF32, nil
	case "float16", "f16", "F16", "half":
		return DTypeF16, nil
	case "bfloat16", "bf16", "BF16":
		return DTypeBF16, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", s)
	}
}

// Tensor is a placed weight tensor. Implementations are provided by
// backends; the loader only needs shape, precision and a float32 view.
type Tensor interface {
	Shape() []int
	DType() DType
	Floats() []float32
}

// Backend places decoded weight data onto a device.
type Backend interface {
	Name() string

	// FromFloats copies s into device storage with the given shape.
	FromFloats(s []float32, shape ...int) (Tensor, error)

	// Convert returns t converted to dtype. Implementations may keep a
	// float32 compute layout as long as values round through the
	// requested precision.
	Convert(t Tensor, dtype DType) (Tensor, error)
}

var backends = make(map[string]func() (Backend, error))

func RegisterBackend(name string, f func() (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

func NewBackend(name string) (Backend, error) {
	if f, ok := backends[name]; ok {
		return f()
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}

// WeightSet groups the named tensors of a single model component, keyed
// by full tensor name.
type WeightSet map[string]Tensor

func (ws WeightSet) Get(name string) (Tensor, bool) {
	t, ok := ws[name]
	return t, ok
}

// Names returns the tensor names in sorted order.
func (ws WeightSet) Names() []string {
	names := maps.Keys(ws)
	slices.Sort(names)
	return names
}

// Size returns the payload size in bytes at each tensor's precision.
func (ws WeightSet) Size() uint64 {
	var n uint64
	for _, t := range ws {
		n += uint64(len(t.Floats())) * t.DType().Size()
	}
	return n
}

// Module is an executable model component assembled from a weight set.
// The loading layer treats modules as opaque values.
type Module interface{}

// Assembler turns raw weight sets into executable modules. The compute
// runtime provides the implementation; loading code only calls it.
type Assembler interface {
	Layer(index int, ws WeightSet) (Module, error)
	Embedding(ws WeightSet) (Module, error)
	Head(ws WeightSet) (Module, error)
	Norm(ws WeightSet) (Module, error)
}

// MaskBuilder produces the causal attention mask consumed alongside the
// input embedding, given the sequence length and the cache positions of
// the tokens being scored.
type MaskBuilder interface {
	CausalMask(seqLen int, cachePosition []int32, dtype DType) (Tensor, error)
}
