package nn

import (
	"math"
	"testing"
)

// TestTensorCreation verifies basic tensor operations
func TestTensorCreation(t *testing.T) {
	// Test NewTensor
	tensor := NewTensor[float32](3, 4)
	if tensor.Size() != 12 {
		t.Errorf("Expected size 12, got %d", tensor.Size())
	}
	if len(tensor.Shape) != 2 || tensor.Shape[0] != 3 || tensor.Shape[1] != 4 {
		t.Errorf("Expected shape [3, 4], got %v", tensor.Shape)
	}
	if tensor.Rows() != 3 || tensor.Cols() != 4 {
		t.Errorf("Expected rows=3 cols=4, got rows=%d cols=%d", tensor.Rows(), tensor.Cols())
	}
	if tensor.Strides[0] != 4 || tensor.Strides[1] != 1 {
		t.Errorf("Expected strides [4, 1], got %v", tensor.Strides)
	}
	if !tensor.OnHost() || tensor.Device() != DeviceCPU {
		t.Errorf("Expected host tensor, got device %s", tensor.Device())
	}

	// Test NewTensorFromSlice
	data := []float64{1, 2, 3, 4, 5, 6}
	tensor2 := NewTensorFromSlice(data, 2, 3)
	if tensor2.Size() != 6 {
		t.Errorf("Expected size 6, got %d", tensor2.Size())
	}
	if tensor2.Data[0] != 1 || tensor2.Data[5] != 6 {
		t.Errorf("Data not correctly initialized")
	}

	// No shape means one dimension
	flat := NewTensorFromSlice([]float32{1, 2, 3})
	if len(flat.Shape) != 1 || flat.Shape[0] != 3 {
		t.Errorf("Expected shape [3], got %v", flat.Shape)
	}
}

// TestTensorRow verifies row views share storage
func TestTensorRow(t *testing.T) {
	tensor := NewTensorFromSlice([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	row := tensor.Row(1)
	if len(row) != 2 || row[0] != 3 || row[1] != 4 {
		t.Fatalf("Expected row [3 4], got %v", row)
	}
	row[0] = 30
	if tensor.Data[2] != 30 {
		t.Errorf("Row should be a view into Data")
	}
}

// TestTensorClone verifies tensor cloning
func TestTensorClone(t *testing.T) {
	original := NewTensorFromSlice([]int32{1, 2, 3, 4}, 4)
	clone := original.Clone()

	// Modify original
	original.Data[0] = 100

	// Clone should be unchanged
	if clone.Data[0] != 1 {
		t.Errorf("Clone was modified when original changed")
	}
}

// TestTensorReshape verifies tensor reshaping
func TestTensorReshape(t *testing.T) {
	tensor := NewTensorFromSlice([]float32{1, 2, 3, 4, 5, 6}, 6)
	reshaped := tensor.Reshape(2, 3)

	if reshaped == nil {
		t.Fatal("Reshape returned nil")
	}
	if len(reshaped.Shape) != 2 || reshaped.Shape[0] != 2 || reshaped.Shape[1] != 3 {
		t.Errorf("Expected shape [2, 3], got %v", reshaped.Shape)
	}

	// Invalid reshape should return nil
	invalid := tensor.Reshape(2, 2)
	if invalid != nil {
		t.Error("Invalid reshape should return nil")
	}
}

// TestTensorReleaseHost verifies Release is a no-op on host tensors
func TestTensorReleaseHost(t *testing.T) {
	tensor := NewTensorFromSlice([]float32{1, 2}, 1, 2)
	tensor.Release()
	if tensor.Data[1] != 2 {
		t.Errorf("Release should not touch host data")
	}
	var nilTensor *Tensor[float32]
	nilTensor.Release()
}

// TestActivateGeneric verifies generic activation functions
func TestActivateGeneric(t *testing.T) {
	// Test with float32
	resultF32 := Activate[float32](0.5, ActivationSigmoid)
	expectedF32 := float32(1.0 / (1.0 + math.Exp(-0.5)))
	if math.Abs(float64(resultF32-expectedF32)) > 1e-6 {
		t.Errorf("Sigmoid float32: expected %f, got %f", expectedF32, resultF32)
	}

	// Test with float64
	resultF64 := Activate[float64](0.5, ActivationSigmoid)
	expectedF64 := 1.0 / (1.0 + math.Exp(-0.5))
	if math.Abs(resultF64-expectedF64) > 1e-10 {
		t.Errorf("Sigmoid float64: expected %f, got %f", expectedF64, resultF64)
	}

	// Test Tanh
	tanhResult := Activate[float64](0.3, ActivationTanh)
	if math.Abs(tanhResult-math.Tanh(0.3)) > 1e-12 {
		t.Errorf("Tanh: expected %f, got %f", math.Tanh(0.3), tanhResult)
	}
}

// TestParseDevice verifies device names
func TestParseDevice(t *testing.T) {
	cases := map[string]Device{"": DeviceCPU, "cpu": DeviceCPU, "gpu": DeviceGPU}
	for in, want := range cases {
		got, err := ParseDevice(in)
		if err != nil || got != want {
			t.Errorf("ParseDevice(%q): expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParseDevice("tpu"); err == nil {
		t.Error("Expected error for unknown device")
	}
}
