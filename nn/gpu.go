package nn

import (
	"fmt"

	"github.com/openfluke/lstmcell/gpu"
	"github.com/openfluke/webgpu/wgpu"
)

// GPUBackend runs the cell's tensor operations as WebGPU compute kernels.
// Only float32 is supported, so it implements Backend[float32].
type GPUBackend struct {
	ctx     *gpu.Context
	kernels *gpu.KernelCache
}

// NewGPUBackend initializes the shared GPU context.
// It returns an error wrapping ErrNoGPU when no adapter is usable.
func NewGPUBackend() (*GPUBackend, error) {
	c, err := gpu.GetContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGPU, err)
	}
	return &GPUBackend{ctx: c, kernels: gpu.NewKernelCache()}, nil
}

// ReleaseGPU frees compiled kernels. Tensors are released by their owners.
func (g *GPUBackend) ReleaseGPU() {
	g.kernels.Release()
}

func (g *GPUBackend) Device() Device { return DeviceGPU }

func (g *GPUBackend) Zeros(shape ...int) (*Tensor[float32], error) {
	for _, d := range shape {
		if d <= 0 {
			return nil, shapeErr("zeros", nil, shape)
		}
	}
	buf, err := gpu.NewZeroBuffer("Zeros", shapeSize(shape))
	if err != nil {
		return nil, err
	}
	return newDeviceTensor[float32](buf, shape...), nil
}

func (g *GPUBackend) Upload(t *Tensor[float32]) (*Tensor[float32], error) {
	if !t.OnHost() {
		return t, nil
	}
	if len(t.Data) < t.Size() {
		return nil, shapeErr("upload", t.Shape, []int{len(t.Data)})
	}
	buf, err := gpu.NewFloatBuffer("Upload", t.Data[:t.Size()])
	if err != nil {
		return nil, err
	}
	return newDeviceTensor[float32](buf, t.Shape...), nil
}

func (g *GPUBackend) Download(t *Tensor[float32]) (*Tensor[float32], error) {
	if t.OnHost() {
		return t, nil
	}
	data, err := gpu.ReadBuffer(t.buf, t.Size())
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return NewTensorFromSlice(data, t.Shape...), nil
}

func (g *GPUBackend) Linear(x, w, b *Tensor[float32]) (*Tensor[float32], error) {
	if err := checkDevice(DeviceGPU, x, w, b); err != nil {
		return nil, err
	}
	batch, in, out, err := checkLinear(x, w, b)
	if err != nil {
		return nil, err
	}
	code := gpu.LinearShader(batch, in, out, b != nil, g.ctx.WorkgroupX)
	bufs := []*wgpu.Buffer{x.buf, w.buf}
	if b != nil {
		bufs = append(bufs, b.buf)
	}
	return g.run("Linear", code, batch*out, []int{batch, out}, bufs...)
}

func (g *GPUBackend) Add(a, b *Tensor[float32]) (*Tensor[float32], error) {
	if err := checkDevice(DeviceGPU, a, b); err != nil {
		return nil, err
	}
	if !sameShape(a.Shape, b.Shape) {
		return nil, shapeErr("add", a.Shape, b.Shape)
	}
	code := gpu.AddShader(a.Size(), g.ctx.WorkgroupX)
	return g.run("Add", code, a.Size(), a.Shape, a.buf, b.buf)
}

func (g *GPUBackend) LSTM(c, gates *Tensor[float32]) (*Tensor[float32], *Tensor[float32], error) {
	if err := checkDevice(DeviceGPU, c, gates); err != nil {
		return nil, nil, err
	}
	batch, stateBatch, size, err := checkLSTM(c, gates)
	if err != nil {
		return nil, nil, err
	}

	cNew, err := gpu.NewZeroBuffer("LSTM_Cell", stateBatch*size)
	if err != nil {
		return nil, nil, err
	}
	h, err := gpu.NewZeroBuffer("LSTM_H", batch*size)
	if err != nil {
		cNew.Destroy()
		return nil, nil, err
	}

	code := gpu.LSTMGateShader(batch, stateBatch, size, g.ctx.WorkgroupX)
	k, err := g.kernels.Get(g.ctx, "LSTM", code)
	if err == nil {
		err = k.Run(g.ctx, stateBatch*size, c.buf, gates.buf, cNew, h)
	}
	if err != nil {
		cNew.Destroy()
		h.Destroy()
		return nil, nil, err
	}
	return newDeviceTensor[float32](cNew, stateBatch, size), newDeviceTensor[float32](h, batch, size), nil
}

func (g *GPUBackend) Concat(parts ...*Tensor[float32]) (*Tensor[float32], error) {
	if err := checkDevice(DeviceGPU, parts...); err != nil {
		return nil, err
	}
	rows, cols, err := checkConcat(parts)
	if err != nil {
		return nil, err
	}
	dst, err := gpu.NewZeroBuffer("Concat", rows*cols)
	if err != nil {
		return nil, err
	}
	segs := make([]gpu.Segment, len(parts))
	for i, p := range parts {
		segs[i] = gpu.Segment{Buffer: p.buf, Len: p.Size()}
	}
	if err := gpu.Gather(dst, segs...); err != nil {
		dst.Destroy()
		return nil, err
	}
	return newDeviceTensor[float32](dst, rows, cols), nil
}

func (g *GPUBackend) Split(t *Tensor[float32], at int) (*Tensor[float32], *Tensor[float32], error) {
	if err := checkDevice(DeviceGPU, t); err != nil {
		return nil, nil, err
	}
	rows, cols, err := checkSplit(t, at)
	if err != nil {
		return nil, nil, err
	}

	head, err := gpu.NewZeroBuffer("Split_Head", at*cols)
	if err != nil {
		return nil, nil, err
	}
	tail, err := gpu.NewZeroBuffer("Split_Tail", (rows-at)*cols)
	if err == nil {
		err = gpu.Gather(head, gpu.Segment{Buffer: t.buf, Len: at * cols})
	}
	if err == nil {
		err = gpu.Gather(tail, gpu.Segment{Buffer: t.buf, Offset: at * cols, Len: (rows - at) * cols})
	}
	if err != nil {
		head.Destroy()
		if tail != nil {
			tail.Destroy()
		}
		return nil, nil, err
	}
	return newDeviceTensor[float32](head, at, cols), newDeviceTensor[float32](tail, rows-at, cols), nil
}

// run allocates the output buffer, appends it as the last binding and
// dispatches n invocations of code.
func (g *GPUBackend) run(label, code string, n int, shape []int, in ...*wgpu.Buffer) (*Tensor[float32], error) {
	out, err := gpu.NewZeroBuffer(label+"_Out", n)
	if err != nil {
		return nil, err
	}
	k, err := g.kernels.Get(g.ctx, label, code)
	if err == nil {
		err = k.Run(g.ctx, n, append(in, out)...)
	}
	if err != nil {
		out.Destroy()
		return nil, err
	}
	return newDeviceTensor[float32](out, shape...), nil
}
