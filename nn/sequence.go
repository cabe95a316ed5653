package nn

import (
	"fmt"
)

// TransposeSequence turns a batch of sequences into time-major steps.
//
// Each sequence is a [len_i, features] host tensor and the sequences must be
// sorted by non-increasing length. Step t holds row t of every sequence
// longer than t, so the batch size shrinks as sequences end. Zero-length
// sequences are allowed and never appear in the output.
func TransposeSequence[T Numeric](seqs []*Tensor[T]) ([]*Tensor[T], error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	cols := -1
	for i, s := range seqs {
		if s == nil {
			return nil, shapeErr(fmt.Sprintf("sequence %d", i), []int{-1, -1}, nil)
		}
		if err := checkHost(s); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		if len(s.Shape) != 2 {
			return nil, shapeErr(fmt.Sprintf("sequence %d", i), []int{-1, -1}, s.Shape)
		}
		if i > 0 && s.Rows() > seqs[i-1].Rows() {
			return nil, fmt.Errorf("%w: sequence %d has %d steps, sequence %d has %d",
				ErrUnsortedSequences, i, s.Rows(), i-1, seqs[i-1].Rows())
		}
		if s.Rows() == 0 {
			continue
		}
		if cols < 0 {
			cols = s.Cols()
		} else if s.Cols() != cols {
			return nil, shapeErr(fmt.Sprintf("sequence %d", i), []int{-1, cols}, s.Shape)
		}
	}

	steps := make([]*Tensor[T], seqs[0].Rows())
	for t := range steps {
		batch := 0
		for batch < len(seqs) && seqs[batch].Rows() > t {
			batch++
		}
		x := NewTensor[T](batch, cols)
		for i := 0; i < batch; i++ {
			copy(x.Row(i), seqs[i].Row(t))
		}
		steps[t] = x
	}
	return steps, nil
}

// Run resets the cell and steps it through seqs, which must be sorted by
// non-increasing length. It returns the output of every step.
// Inputs are uploaded to the cell's device one step at a time.
func (l *StatefulLSTM[T]) Run(seqs []*Tensor[T]) ([]*Tensor[T], error) {
	steps, err := TransposeSequence(seqs)
	if err != nil {
		return nil, err
	}

	l.ResetState()
	outputs := make([]*Tensor[T], 0, len(steps))
	for t, x := range steps {
		dx, err := l.backend.Upload(x)
		if err != nil {
			return outputs, fmt.Errorf("upload step %d: %w", t, err)
		}
		y, err := l.Step(dx)
		releaseIfNew(dx, x)
		if err != nil {
			return outputs, fmt.Errorf("step %d: %w", t, err)
		}
		outputs = append(outputs, y)
	}
	return outputs, nil
}
