package gpu

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/openfluke/lstmcell/detector"
	"github.com/openfluke/webgpu/wgpu"
)

// Context holds the single WebGPU context for the application
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	// WorkgroupX is the 1D workgroup size every kernel is compiled with.
	WorkgroupX uint32

	once sync.Once
}

var ctx Context

// GetContext returns the singleton GPU context, initializing it if necessary
func GetContext() (*Context, error) {
	var initErr error
	ctx.once.Do(func() {
		initErr = ctx.init()
	})

	if initErr != nil {
		return nil, initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}

func (c *Context) init() error {
	// The probe is best effort: without it we fall back to defaults.
	rep, probeErr := detector.Detect()
	if probeErr != nil {
		log.Printf("gpu: adapter probe failed: %v", probeErr)
	}

	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	pp := wgpu.PowerPreferenceHighPerformance
	if rep != nil && rep.AdapterType == "integrated-gpu" {
		pp = wgpu.PowerPreferenceLowPower
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: pp},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err == nil && c.Adapter != nil {
			break
		}
	}
	if c.Adapter == nil {
		c.Instance.Release()
		return fmt.Errorf("all adapter attempts failed: %v", err)
	}

	info := c.Adapter.GetInfo()
	log.Printf("gpu: using adapter %s (vendor %s)", strings.TrimSpace(info.Name), info.VendorName)

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		c.Adapter.Release()
		c.Instance.Release()
		return fmt.Errorf("request device: %w", err)
	}
	c.Queue = c.Device.GetQueue()

	c.WorkgroupX = 64
	if rep != nil && rep.Recommended.WorkgroupX > 0 {
		c.WorkgroupX = rep.Recommended.WorkgroupX
	}
	return nil
}

// Poll blocks until all submitted work has finished.
func (c *Context) Poll() {
	c.Device.Poll(true, nil)
}
