package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
)

// Backend defines the tensor operations the recurrent cell is built from.
// This abstraction allows swapping implementations (CPU, GPU) without
// changing layer code. Every method validates shapes and returns a
// *ShapeError wrapping ErrShapeMismatch on disagreement.
type Backend[T Float] interface {
	// Device reports where tensors produced by this backend live.
	Device() Device

	// Zeros allocates a zero-filled tensor on the backend's device.
	Zeros(shape ...int) (*Tensor[T], error)

	// Upload copies a host tensor onto the backend's device.
	// For a host backend the tensor is returned as is.
	Upload(t *Tensor[T]) (*Tensor[T], error)

	// Download copies a tensor produced by this backend back to host memory.
	Download(t *Tensor[T]) (*Tensor[T], error)

	// Linear computes x @ w^T + b.
	// x: [B, In], w: [Out, In], b: [Out] or nil -> [B, Out]
	Linear(x, w, b *Tensor[T]) (*Tensor[T], error)

	// Add performs element-wise addition of two equally shaped tensors.
	Add(a, b *Tensor[T]) (*Tensor[T], error)

	// LSTM applies the LSTM gate activation.
	// c: [Bc, S] previous cell, gates: [B, 4S] with B <= Bc.
	// Gate chunks are ordered input, forget, output, candidate.
	// Returns the new cell [Bc, S] (rows B.. copied from c) and the
	// new output [B, S].
	LSTM(c, gates *Tensor[T]) (*Tensor[T], *Tensor[T], error)

	// Concat joins rank-2 tensors along the batch axis.
	Concat(parts ...*Tensor[T]) (*Tensor[T], error)

	// Split cuts a rank-2 tensor along the batch axis into rows [0, at)
	// and [at, rows).
	Split(t *Tensor[T], at int) (*Tensor[T], *Tensor[T], error)
}

// =============================================================================
// Shape checks shared by every backend
// =============================================================================

func checkLinear[T Numeric](x, w, b *Tensor[T]) (batch, in, out int, err error) {
	if len(w.Shape) != 2 || w.Shape[0] < 1 || w.Shape[1] < 1 {
		return 0, 0, 0, shapeErr("linear weight", []int{-1, -1}, w.Shape)
	}
	out, in = w.Shape[0], w.Shape[1]
	if len(x.Shape) != 2 || x.Shape[0] < 1 || x.Shape[1] != in {
		return 0, 0, 0, shapeErr("linear input", []int{-1, in}, x.Shape)
	}
	if b != nil && (len(b.Shape) != 1 || b.Shape[0] != out) {
		return 0, 0, 0, shapeErr("linear bias", []int{out}, b.Shape)
	}
	return x.Shape[0], in, out, nil
}

func checkLSTM[T Numeric](c, gates *Tensor[T]) (batch, stateBatch, size int, err error) {
	if len(c.Shape) != 2 {
		return 0, 0, 0, shapeErr("lstm cell", []int{-1, -1}, c.Shape)
	}
	stateBatch, size = c.Shape[0], c.Shape[1]
	if len(gates.Shape) != 2 || gates.Shape[1] != 4*size || gates.Shape[0] > stateBatch {
		return 0, 0, 0, shapeErr("lstm gates", []int{stateBatch, 4 * size}, gates.Shape)
	}
	return gates.Shape[0], stateBatch, size, nil
}

func checkConcat[T Numeric](parts []*Tensor[T]) (rows, cols int, err error) {
	if len(parts) == 0 {
		return 0, 0, shapeErr("concat", []int{-1, -1}, nil)
	}
	cols = parts[0].Cols()
	for _, p := range parts {
		if len(p.Shape) != 2 || p.Shape[1] != cols {
			return 0, 0, shapeErr("concat", []int{-1, cols}, p.Shape)
		}
		rows += p.Shape[0]
	}
	return rows, cols, nil
}

func checkSplit[T Numeric](t *Tensor[T], at int) (rows, cols int, err error) {
	if len(t.Shape) != 2 || at <= 0 || at >= t.Shape[0] {
		return 0, 0, shapeErr("split", []int{at + 1, -1}, t.Shape)
	}
	return t.Shape[0], t.Shape[1], nil
}

func checkDevice[T Numeric](d Device, ts ...*Tensor[T]) error {
	for _, t := range ts {
		if t != nil && t.device != d {
			return ErrDeviceMismatch
		}
	}
	return nil
}

// checkHost also verifies that Data actually covers Shape.
func checkHost[T Numeric](ts ...*Tensor[T]) error {
	if err := checkDevice(DeviceCPU, ts...); err != nil {
		return err
	}
	for _, t := range ts {
		if t != nil && len(t.Data) < t.Size() {
			return shapeErr("data", t.Shape, []int{len(t.Data)})
		}
	}
	return nil
}

// =============================================================================
// CPUBackend Implementation
// =============================================================================

// CPUBackend provides host-memory tensor operations.
// Matrix products go through gonum; float32 uses blas32 directly and
// float64 goes through mat.Dense.
type CPUBackend[T Float] struct{}

// NewCPUBackend creates a new CPU backend.
func NewCPUBackend[T Float]() *CPUBackend[T] {
	return &CPUBackend[T]{}
}

func (b *CPUBackend[T]) Device() Device { return DeviceCPU }

func (b *CPUBackend[T]) Zeros(shape ...int) (*Tensor[T], error) {
	for _, d := range shape {
		if d <= 0 {
			return nil, shapeErr("zeros", nil, shape)
		}
	}
	return NewTensor[T](shape...), nil
}

func (b *CPUBackend[T]) Upload(t *Tensor[T]) (*Tensor[T], error) {
	if !t.OnHost() {
		return nil, ErrDeviceMismatch
	}
	return t, nil
}

func (b *CPUBackend[T]) Download(t *Tensor[T]) (*Tensor[T], error) {
	if !t.OnHost() {
		return nil, ErrDeviceMismatch
	}
	return t, nil
}

// Linear computes x @ w^T + b
func (b *CPUBackend[T]) Linear(x, w, bias *Tensor[T]) (*Tensor[T], error) {
	if err := checkHost(x, w, bias); err != nil {
		return nil, err
	}
	batch, in, out, err := checkLinear(x, w, bias)
	if err != nil {
		return nil, err
	}

	result := NewTensor[T](batch, out)
	switch xd := any(x.Data).(type) {
	case []float32:
		gemm32(xd, any(w.Data).([]float32), any(result.Data).([]float32), batch, in, out)
	case []float64:
		res := gemm64(xd[:batch*in], any(w.Data).([]float64)[:out*in], batch, in, out)
		result.Data = any(res).([]T)
	default:
		matMulTransposed(x.Data, w.Data, result.Data, batch, in, out)
	}

	if bias != nil {
		for r := 0; r < batch; r++ {
			row := result.Data[r*out : (r+1)*out]
			for j, v := range bias.Data {
				row[j] += v
			}
		}
	}
	return result, nil
}

// gemm32 writes x @ w^T into dst with blas32.
func gemm32(x, w, dst []float32, batch, in, out int) {
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: batch, Cols: in, Stride: in, Data: x},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: w},
		0,
		blas32.General{Rows: batch, Cols: out, Stride: out, Data: dst})
}

// gemm64 returns x @ w^T computed with mat.Dense.
func gemm64(x, w []float64, batch, in, out int) []float64 {
	xm := mat.NewDense(batch, in, x)
	wm := mat.NewDense(out, in, w)
	res := mat.NewDense(batch, out, nil)
	res.Mul(xm, wm.T())
	raw := res.RawMatrix()
	if raw.Stride == out {
		return raw.Data[:batch*out]
	}
	data := make([]float64, batch*out)
	for r := 0; r < batch; r++ {
		copy(data[r*out:(r+1)*out], raw.Data[r*raw.Stride:r*raw.Stride+out])
	}
	return data
}

// matMulTransposed is the fallback for named float types gonum cannot see.
func matMulTransposed[T Float](x, w, dst []T, batch, in, out int) {
	for r := 0; r < batch; r++ {
		xr := x[r*in : (r+1)*in]
		for o := 0; o < out; o++ {
			wr := w[o*in : (o+1)*in]
			sum := float64(0)
			for k := range xr {
				sum += float64(xr[k]) * float64(wr[k])
			}
			dst[r*out+o] = T(sum)
		}
	}
}

// Add performs element-wise addition: result = a + b
func (b *CPUBackend[T]) Add(a, other *Tensor[T]) (*Tensor[T], error) {
	if err := checkHost(a, other); err != nil {
		return nil, err
	}
	if !sameShape(a.Shape, other.Shape) {
		return nil, shapeErr("add", a.Shape, other.Shape)
	}
	result := NewTensor[T](a.Shape...)
	for i := range a.Data {
		result.Data[i] = a.Data[i] + other.Data[i]
	}
	return result, nil
}

// LSTM applies the gate activation row by row.
func (b *CPUBackend[T]) LSTM(c, gates *Tensor[T]) (*Tensor[T], *Tensor[T], error) {
	if err := checkHost(c, gates); err != nil {
		return nil, nil, err
	}
	batch, stateBatch, size, err := checkLSTM(c, gates)
	if err != nil {
		return nil, nil, err
	}

	cNew := NewTensor[T](stateBatch, size)
	h := NewTensor[T](batch, size)
	for r := 0; r < batch; r++ {
		g := gates.Data[r*4*size : (r+1)*4*size]
		cPrev := c.Data[r*size : (r+1)*size]
		cRow := cNew.Data[r*size : (r+1)*size]
		hRow := h.Data[r*size : (r+1)*size]
		for j := 0; j < size; j++ {
			i := sigmoid(g[j])
			f := sigmoid(g[size+j])
			o := sigmoid(g[2*size+j])
			a := tanh(g[3*size+j])
			cRow[j] = f*cPrev[j] + i*a
			hRow[j] = o * tanh(cRow[j])
		}
	}
	// Rows beyond the gate batch keep their previous cell value.
	copy(cNew.Data[batch*size:], c.Data[batch*size:])
	return cNew, h, nil
}

func (b *CPUBackend[T]) Concat(parts ...*Tensor[T]) (*Tensor[T], error) {
	if err := checkHost(parts...); err != nil {
		return nil, err
	}
	rows, cols, err := checkConcat(parts)
	if err != nil {
		return nil, err
	}
	result := NewTensor[T](rows, cols)
	offset := 0
	for _, p := range parts {
		offset += copy(result.Data[offset:], p.Data[:p.Size()])
	}
	return result, nil
}

func (b *CPUBackend[T]) Split(t *Tensor[T], at int) (*Tensor[T], *Tensor[T], error) {
	if err := checkHost(t); err != nil {
		return nil, nil, err
	}
	rows, cols, err := checkSplit(t, at)
	if err != nil {
		return nil, nil, err
	}
	head := make([]T, at*cols)
	tail := make([]T, (rows-at)*cols)
	copy(head, t.Data[:at*cols])
	copy(tail, t.Data[at*cols:rows*cols])
	return NewTensorFromSlice(head, at, cols), NewTensorFromSlice(tail, rows-at, cols), nil
}
