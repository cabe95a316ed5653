package nn

import (
	"github.com/openfluke/webgpu/wgpu"
)

// Numeric is the set of element types a Tensor can hold.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Float is the set of element types the compute backends accept.
type Float interface {
	~float32 | ~float64
}

// Tensor is a dense row-major array.
// Host tensors keep their values in Data. Device tensors leave Data nil and
// own a GPU buffer instead; use a Backend to move values between the two.
type Tensor[T Numeric] struct {
	Data    []T
	Shape   []int
	Strides []int

	device Device
	buf    *wgpu.Buffer
}

// NewTensor creates a zero-filled host tensor with the given shape.
func NewTensor[T Numeric](shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Data:    make([]T, shapeSize(shape)),
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
		device:  DeviceCPU,
	}
}

// NewTensorFromSlice wraps data in a host tensor. The slice is not copied.
// If no shape is given the tensor is one-dimensional.
func NewTensorFromSlice[T Numeric](data []T, shape ...int) *Tensor[T] {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return &Tensor[T]{
		Data:    data,
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
		device:  DeviceCPU,
	}
}

// newDeviceTensor wraps a GPU buffer.
func newDeviceTensor[T Numeric](buf *wgpu.Buffer, shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
		device:  DeviceGPU,
		buf:     buf,
	}
}

// Size returns the total number of elements.
func (t *Tensor[T]) Size() int {
	return shapeSize(t.Shape)
}

// Rows returns the leading (batch) dimension.
func (t *Tensor[T]) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Cols returns the trailing (feature) dimension of a rank-2 tensor.
func (t *Tensor[T]) Cols() int {
	if len(t.Shape) < 2 {
		return 0
	}
	return t.Shape[len(t.Shape)-1]
}

// Row returns a view of row i of a rank-2 host tensor.
func (t *Tensor[T]) Row(i int) []T {
	cols := t.Cols()
	return t.Data[i*cols : (i+1)*cols : (i+1)*cols]
}

// Device reports where the tensor's storage lives.
func (t *Tensor[T]) Device() Device {
	return t.device
}

// OnHost reports whether Data holds the tensor's values.
func (t *Tensor[T]) OnHost() bool {
	return t.device == DeviceCPU
}

// Buffer returns the GPU buffer backing a device tensor, or nil.
func (t *Tensor[T]) Buffer() *wgpu.Buffer {
	return t.buf
}

// Clone returns a deep copy of a host tensor.
// Device tensors must be downloaded first; Clone returns nil for them.
func (t *Tensor[T]) Clone() *Tensor[T] {
	if !t.OnHost() {
		return nil
	}
	data := make([]T, len(t.Data))
	copy(data, t.Data)
	return &Tensor[T]{
		Data:    data,
		Shape:   append([]int(nil), t.Shape...),
		Strides: append([]int(nil), t.Strides...),
		device:  DeviceCPU,
	}
}

// Reshape returns a tensor sharing storage with t under a new shape.
// It returns nil if the element counts differ.
func (t *Tensor[T]) Reshape(shape ...int) *Tensor[T] {
	if shapeSize(shape) != t.Size() {
		return nil
	}
	return &Tensor[T]{
		Data:    t.Data,
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
		device:  t.device,
		buf:     t.buf,
	}
}

// Release frees device storage. It is a no-op for host tensors.
func (t *Tensor[T]) Release() {
	if t == nil || t.buf == nil {
		return
	}
	t.buf.Destroy()
	t.buf = nil
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
