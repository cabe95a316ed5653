package nn

import (
	"math/rand"
	"testing"
)

func newTestGPU(t *testing.T) *GPUBackend {
	t.Helper()
	g, err := NewGPUBackend()
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	t.Cleanup(g.ReleaseGPU)
	return g
}

func randTensor32(rng *rand.Rand, rows, cols int) *Tensor[float32] {
	x := NewTensor[float32](rows, cols)
	for i := range x.Data {
		x.Data[i] = rng.Float32()*2 - 1
	}
	return x
}

// TestGPUMatchesCPU steps identical cells on both backends through a
// shrinking batch and compares outputs.
func TestGPUMatchesCPU(t *testing.T) {
	g := newTestGPU(t)

	cpuCell, err := NewStatefulLSTM[float32](5, 7, WithSeed(3))
	if err != nil {
		t.Fatalf("NewStatefulLSTM failed: %v", err)
	}
	gpuCell, err := NewStatefulLSTM[float32](5, 7, WithSeed(3), WithBackend[float32](g))
	if err != nil {
		t.Fatalf("NewStatefulLSTM on GPU failed: %v", err)
	}
	if gpuCell.Upward.W.OnHost() {
		t.Fatal("Weights should live on the GPU")
	}

	rng := rand.New(rand.NewSource(30))
	for i, batch := range []int{4, 4, 3, 1} {
		x := randTensor32(rng, batch, 5)
		want, err := cpuCell.Step(x)
		if err != nil {
			t.Fatalf("CPU step %d failed: %v", i, err)
		}

		dx, err := g.Upload(x)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		y, err := gpuCell.Step(dx)
		dx.Release()
		if err != nil {
			t.Fatalf("GPU step %d failed: %v", i, err)
		}
		got, err := g.Download(y)
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if got.Rows() != 4 {
			t.Errorf("Step %d: expected 4 rows, got %d", i, got.Rows())
		}
		if d := MaxAbsDiff(got.Data, want.Data); d > 1e-4 {
			t.Errorf("Step %d: GPU differs from CPU by %g", i, d)
		}
	}
}

func TestGPUTransferRoundTrip(t *testing.T) {
	g := newTestGPU(t)

	cell, err := NewStatefulLSTM[float32](3, 4, WithSeed(4))
	if err != nil {
		t.Fatalf("NewStatefulLSTM failed: %v", err)
	}
	if _, err := cell.Step(randTensor32(rand.New(rand.NewSource(31)), 2, 3)); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	want := cell.OutputState().Clone()
	wantW := cell.Upward.W.Clone()

	if err := cell.ToDevice(g); err != nil {
		t.Fatalf("ToDevice failed: %v", err)
	}
	if cell.OutputState().OnHost() || cell.CellState().OnHost() {
		t.Fatal("State should be on the GPU")
	}

	// Second transfer to the same device keeps the buffers
	buf := cell.OutputState().Buffer()
	if err := cell.ToDevice(g); err != nil {
		t.Fatalf("Second ToDevice failed: %v", err)
	}
	if cell.OutputState().Buffer() != buf {
		t.Error("Transfer to the same device should keep the buffer")
	}

	if err := cell.ToCPU(); err != nil {
		t.Fatalf("ToCPU failed: %v", err)
	}
	if MaxAbsDiff(cell.OutputState().Data, want.Data) != 0 {
		t.Error("Round trip changed the output state")
	}
	if MaxAbsDiff(cell.Upward.W.Data, wantW.Data) != 0 {
		t.Error("Round trip changed the weights")
	}
}

func TestGPUConcatSplit(t *testing.T) {
	g := newTestGPU(t)
	x := NewTensorFromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 4, 2)

	dx, err := g.Upload(x)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer dx.Release()

	head, tail, err := g.Split(dx, 1)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	defer head.Release()
	defer tail.Release()

	joined, err := g.Concat(tail, head)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	defer joined.Release()

	got, err := g.Download(joined)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	want := []float32{3, 4, 5, 6, 7, 8, 1, 2}
	if MaxAbsDiff(got.Data, want) != 0 {
		t.Errorf("Expected %v, got %v", want, got.Data)
	}
}

func TestGPURunAndReset(t *testing.T) {
	g := newTestGPU(t)

	rng := rand.New(rand.NewSource(32))
	seqs := []*Tensor[float32]{randTensor32(rng, 3, 4), randTensor32(rng, 2, 4), randTensor32(rng, 1, 4)}

	cpuCell, err := NewStatefulLSTM[float32](4, 3, WithSeed(5))
	if err != nil {
		t.Fatalf("NewStatefulLSTM failed: %v", err)
	}
	want, err := cpuCell.Run(seqs)
	if err != nil {
		t.Fatalf("CPU Run failed: %v", err)
	}

	gpuCell, err := NewStatefulLSTM[float32](4, 3, WithSeed(5), WithBackend[float32](g))
	if err != nil {
		t.Fatalf("NewStatefulLSTM on GPU failed: %v", err)
	}
	got, err := gpuCell.Run(seqs)
	if err != nil {
		t.Fatalf("GPU Run failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d outputs, got %d", len(want), len(got))
	}
	for i, y := range got {
		if y.OnHost() {
			t.Fatalf("Output %d should stay on the GPU", i)
		}
		host, err := g.Download(y)
		if err != nil {
			t.Fatalf("Download %d failed: %v", i, err)
		}
		if d := MaxAbsDiff(host.Data, want[i].Data); d > 1e-4 {
			t.Errorf("Output %d: GPU differs from CPU by %g", i, d)
		}
	}

	cellState := gpuCell.CellState()
	if cellState.Buffer() == nil {
		t.Fatal("Cell state should be backed by a GPU buffer")
	}
	gpuCell.ResetState()
	if gpuCell.CellState() != nil || gpuCell.OutputState() != nil {
		t.Error("Reset should clear GPU state")
	}
	if cellState.Buffer() != nil {
		t.Error("Reset should release the cell buffer")
	}

	// A second run after the reset reproduces the first
	again, err := gpuCell.Run(seqs)
	if err != nil {
		t.Fatalf("Second GPU Run failed: %v", err)
	}
	last, err := g.Download(again[len(again)-1])
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	first, _ := g.Download(got[len(got)-1])
	if MaxAbsDiff(last.Data, first.Data) != 0 {
		t.Error("Run after reset should reproduce the first run")
	}
}
