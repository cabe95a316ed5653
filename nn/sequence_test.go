package nn

import (
	"errors"
	"math/rand"
	"testing"
)

func seqOf(rows, cols int, start float32) *Tensor[float32] {
	s := NewTensor[float32](rows, cols)
	for i := range s.Data {
		s.Data[i] = start + float32(i)
	}
	return s
}

func TestTransposeSequence(t *testing.T) {
	seqs := []*Tensor[float32]{seqOf(3, 2, 0), seqOf(2, 2, 100), seqOf(1, 2, 200), seqOf(0, 2, 0)}

	steps, err := TransposeSequence(seqs)
	if err != nil {
		t.Fatalf("TransposeSequence failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(steps))
	}

	wantBatch := []int{3, 2, 1}
	for i, s := range steps {
		if s.Rows() != wantBatch[i] || s.Cols() != 2 {
			t.Errorf("Step %d: expected shape [%d, 2], got %v", i, wantBatch[i], s.Shape)
		}
	}

	// Step 1 holds row 1 of the first two sequences
	want := []float32{2, 3, 102, 103}
	for i, v := range steps[1].Data {
		if v != want[i] {
			t.Errorf("Step 1: expected %v, got %v", want, steps[1].Data)
			break
		}
	}
}

func TestTransposeSequenceErrors(t *testing.T) {
	if _, err := TransposeSequence([]*Tensor[float32]{seqOf(1, 2, 0), seqOf(2, 2, 0)}); !errors.Is(err, ErrUnsortedSequences) {
		t.Errorf("Expected ErrUnsortedSequences, got %v", err)
	}
	if _, err := TransposeSequence([]*Tensor[float32]{seqOf(2, 2, 0), seqOf(2, 3, 0)}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := TransposeSequence([]*Tensor[float32]{seqOf(2, 2, 0), nil}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for nil sequence, got %v", err)
	}
	steps, err := TransposeSequence[float32](nil)
	if err != nil || steps != nil {
		t.Errorf("Expected no steps for no sequences, got %v, %v", steps, err)
	}
}

func TestRunMatchesSteps(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	seqs := make([]*Tensor[float64], 0, 4)
	for _, n := range []int{4, 4, 2, 1} {
		seqs = append(seqs, randTensor(rng, n, 3))
	}

	cell := newTestCell(t, 3, 5)
	outputs, err := cell.Run(seqs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outputs) != 4 {
		t.Fatalf("Expected 4 outputs, got %d", len(outputs))
	}
	for i, y := range outputs {
		if y.Rows() != 4 {
			t.Errorf("Output %d: expected 4 rows, got %d", i, y.Rows())
		}
	}

	// Manual stepping from a fresh state gives the same outputs
	steps, _ := TransposeSequence(seqs)
	manual := newTestCell(t, 3, 5)
	for i, x := range steps {
		y, err := manual.Step(x)
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if MaxAbsDiff(y.Data, outputs[i].Data) != 0 {
			t.Errorf("Step %d differs from Run", i)
		}
	}

	// Run resets first
	again, err := cell.Run(seqs)
	if err != nil {
		t.Fatalf("Second Run failed: %v", err)
	}
	if MaxAbsDiff(again[3].Data, outputs[3].Data) != 0 {
		t.Error("Run should start from a reset state")
	}
}
