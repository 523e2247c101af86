// Package safetensors reads the safetensors checkpoint format: an 8 byte
// little-endian header length, a JSON table of tensor metadata, then the
// raw tensor payloads.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/exp/maps"
)

// Header length beyond this is treated as a malformed file rather than
// attempting the allocation.
const maxHeaderSize = 100 << 20

type tensorMetadata struct {
	Type    string   `json:"dtype"`
	Shape   []uint64 `json:"shape"`
	Offsets []int64  `json:"data_offsets"`
}

// TensorInfo describes one tensor entry in a shard header.
type TensorInfo struct {
	Name  string
	DType string
	Shape []uint64

	// Offsets are the [start, end) byte positions of the payload,
	// relative to the end of the header.
	Offsets []int64
}

// Elements returns the number of elements implied by the shape.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// Size returns the payload size in bytes.
func (t TensorInfo) Size() int64 {
	return t.Offsets[1] - t.Offsets[0]
}

// File is a parsed shard header. Only the header is held in memory;
// payload bytes stay on disk until ReadTensor is called.
type File struct {
	path    string
	headerN int64
	tensors map[string]tensorMetadata
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var n int64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%s: read header size: %w", path, err)
	}

	if n <= 0 || n > maxHeaderSize {
		return nil, fmt.Errorf("%s: invalid header size %d", path, n)
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err := io.CopyN(b, f, n); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}

	var headers map[string]tensorMetadata
	if err := json.NewDecoder(b).Decode(&headers); err != nil {
		return nil, fmt.Errorf("%s: parse header: %w", path, err)
	}

	tensors := make(map[string]tensorMetadata, len(headers))
	for name, value := range headers {
		// the __metadata__ entry carries no dtype
		if value.Type == "" {
			continue
		}

		// bitsandbytes quantized models are unsupported
		if len(value.Shape) == 0 {
			return nil, fmt.Errorf("%s: unsupported tensor %q", path, name)
		}

		if len(value.Offsets) != 2 || value.Offsets[1] < value.Offsets[0] {
			return nil, fmt.Errorf("%s: invalid data offsets for tensor %q", path, name)
		}

		tensors[name] = value
	}

	return &File{path: path, headerN: n, tensors: tensors}, nil
}

func (f *File) Path() string {
	return f.path
}

// Tensors lists the header entries sorted by name.
func (f *File) Tensors() []TensorInfo {
	names := maps.Keys(f.tensors)
	slices.Sort(names)

	infos := make([]TensorInfo, len(names))
	for i, name := range names {
		infos[i] = f.info(name)
	}
	return infos
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	if _, ok := f.tensors[name]; !ok {
		return TensorInfo{}, false
	}
	return f.info(name), true
}

func (f *File) info(name string) TensorInfo {
	value := f.tensors[name]
	return TensorInfo{
		Name:    name,
		DType:   value.Type,
		Shape:   value.Shape,
		Offsets: value.Offsets,
	}
}

// ReadTensor streams one payload from disk and decodes it to float32.
// Nothing is cached; repeated calls reread the file.
func (f *File) ReadTensor(name string) ([]float32, TensorInfo, error) {
	value, ok := f.tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%s: no tensor %q", f.path, name)
	}

	r, err := os.Open(f.path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer r.Close()

	if _, err := r.Seek(pad(f.headerN, value.Offsets[0]), io.SeekStart); err != nil {
		return nil, TensorInfo{}, err
	}

	size := value.Offsets[1] - value.Offsets[0]

	var f32s []float32
	switch value.Type {
	case "F32":
		f32s = make([]float32, size/4)
		if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
			return nil, TensorInfo{}, err
		}
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(r, binary.LittleEndian, u16s); err != nil {
			return nil, TensorInfo{}, err
		}

		f32s = make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
	case "BF16":
		u8s := make([]uint8, size)
		if err := binary.Read(r, binary.LittleEndian, u8s); err != nil {
			return nil, TensorInfo{}, err
		}

		f32s = bfloat16.DecodeFloat32(u8s)
	default:
		return nil, TensorInfo{}, fmt.Errorf("unknown data type: %s", value.Type)
	}

	return f32s, f.info(name), nil
}

// pad returns the absolute file position of a payload offset given the
// header length n.
func pad(n, offset int64) int64 {
	return 8 + n + offset
}
