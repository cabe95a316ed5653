// Package detector probes the WebGPU adapter so kernels can be sized for it.
package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openfluke/webgpu/wgpu"
)

// Report is a portable summary of the current adapter/device caps.
type Report struct {
	Backend     string          `json:"backend"`
	AdapterType string          `json:"adapter_type"`
	VendorID    string          `json:"vendor_id_hex"`
	DeviceID    string          `json:"device_id_hex"`
	Name        string          `json:"name"`
	Driver      string          `json:"driver"`
	Recommended Recommendations `json:"recommended"`
	Limits      Limits          `json:"limits"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	// 1D workgroup size used by every cell kernel.
	WorkgroupX uint32 `json:"workgroup_x"`
}

// WorkgroupEnv overrides the recommended workgroup size when set.
const WorkgroupEnv = "LSTMCELL_WORKGROUP_X"

// DetectJSON runs a probe and returns the JSON string.
func DetectJSON() (string, error) {
	rep, err := Detect()
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Detect probes the default adapter and synthesizes a report.
func Detect() (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter")
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	limits := adapter.GetLimits()

	rep := &Report{
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits: Limits{
			MaxComputeInvocationsPerWorkgroup: limits.Limits.MaxComputeInvocationsPerWorkgroup,
			MaxComputeWorkgroupSizeX:          limits.Limits.MaxComputeWorkgroupSizeX,
			MaxComputeWorkgroupsPerDimension:  limits.Limits.MaxComputeWorkgroupsPerDimension,
			MaxStorageBufferBindingSize:       limits.Limits.MaxStorageBufferBindingSize,
			MaxBufferSize:                     limits.Limits.MaxBufferSize,
		},
	}
	rep.Recommended.WorkgroupX = ChooseWorkgroup(rep.Limits, os.Getenv(WorkgroupEnv))
	return rep, nil
}

// ChooseWorkgroup picks the largest power-of-two workgroup the limits allow.
// A positive numeric override is honored if it fits the limits.
func ChooseWorkgroup(l Limits, override string) uint32 {
	fits := func(c uint32) bool {
		return c <= l.MaxComputeWorkgroupSizeX && c <= l.MaxComputeInvocationsPerWorkgroup
	}
	if override != "" {
		if v, err := strconv.Atoi(override); err == nil && v > 0 && fits(uint32(v)) {
			return uint32(v)
		}
	}
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if fits(c) {
			return c
		}
	}
	// absolute portability fallback
	return 1
}
