package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Kernel is a compiled compute pipeline whose bindings are storage buffers
// numbered from 0 in the order they are passed to Run.
type Kernel struct {
	Label    string
	pipeline *wgpu.ComputePipeline
}

// Compile builds a kernel from WGSL source with a "main" entry point.
func Compile(c *Context, label, code string) (*Kernel, error) {
	mod, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", label, err)
	}
	return &Kernel{Label: label, pipeline: pipeline}, nil
}

// Run dispatches the kernel over n invocations and waits for completion.
func (k *Kernel) Run(c *Context, n int, bufs ...*wgpu.Buffer) error {
	entries := make([]wgpu.BindGroupEntry, len(bufs))
	for i, b := range bufs {
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: b, Size: b.GetSize()}
	}
	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.Label + "_Bind",
		Layout:  k.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("bind %s: %w", k.Label, err)
	}
	defer bg.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(Workgroups(n, c.WorkgroupX), 1, 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("command encoder finish: %w", err)
	}
	c.Queue.Submit(cmd)
	c.Poll()
	return nil
}

// Release frees the pipeline.
func (k *Kernel) Release() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}

// Workgroups returns how many workgroups of size wgx cover n invocations.
func Workgroups(n int, wgx uint32) uint32 {
	if wgx == 0 {
		wgx = 64
	}
	return (uint32(n) + wgx - 1) / wgx
}

// KernelCache compiles each distinct shader source once.
type KernelCache struct {
	mu      sync.Mutex
	kernels map[string]*Kernel
}

// NewKernelCache creates an empty cache.
func NewKernelCache() *KernelCache {
	return &KernelCache{kernels: make(map[string]*Kernel)}
}

// Get returns the kernel for code, compiling it on first use.
func (kc *KernelCache) Get(c *Context, label, code string) (*Kernel, error) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if k, ok := kc.kernels[code]; ok {
		return k, nil
	}
	k, err := Compile(c, label, code)
	if err != nil {
		return nil, err
	}
	kc.kernels[code] = k
	return k, nil
}

// Len reports how many kernels have been compiled.
func (kc *KernelCache) Len() int {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return len(kc.kernels)
}

// Release frees every cached pipeline.
func (kc *KernelCache) Release() {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	for code, k := range kc.kernels {
		k.Release()
		delete(kc.kernels, code)
	}
}
