// Package nn provides a stateful LSTM cell with CPU and GPU execution.
//
// A StatefulLSTM owns two affine projections and the recurrent state:
//   - Upward maps the input to the four gate pre-activations (with bias)
//   - Lateral maps the previous output to the same gates (without bias)
//   - The state holds the cell memory and the previous output
//
// The cell is meant to be stepped over time-major minibatches whose
// sequences are sorted by length, so the batch can shrink from one step to
// the next. Finished rows keep their last output and cell value.
//
// Tensor math is delegated to a Backend. CPUBackend works for float32 and
// float64 and uses gonum for matrix products; GPUBackend runs WebGPU compute
// kernels and handles float32.
//
// Example usage:
//
//	cell, _ := nn.NewStatefulLSTM[float32](inSize, outSize, nn.WithSeed(1))
//
//	// Step on CPU
//	y, _ := cell.Step(x)
//
//	// Move to GPU
//	gpuBackend, err := nn.NewGPUBackend()
//	if err == nil {
//		defer gpuBackend.ReleaseGPU()
//		_ = cell.ToDevice(gpuBackend)
//	}
//
//	// Drive a whole length-sorted batch of sequences
//	outputs, _ := cell.Run(seqs)
package nn
