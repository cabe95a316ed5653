package nn

import (
	"fmt"
	"strings"
)

// ActivationType selects an element-wise activation function.
type ActivationType int

const (
	ActivationSigmoid ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh    ActivationType = 2 // tanh(v)
)

// Device identifies the memory space holding a tensor.
type Device int

const (
	DeviceCPU Device = 0 // host memory, values in Tensor.Data
	DeviceGPU Device = 1 // WebGPU storage buffer
)

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// ParseDevice converts "cpu" or "gpu" (any case) into a Device.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return DeviceCPU, nil
	case "gpu":
		return DeviceGPU, nil
	}
	return DeviceCPU, fmt.Errorf("unknown device %q", s)
}
