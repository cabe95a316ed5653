package nn

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when tensor dimensions do not line up.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrBatchGrew is returned by Step when the input batch is larger than
	// the batch carried in the recurrent state.
	ErrBatchGrew = fmt.Errorf("%w: batch grew between steps", ErrShapeMismatch)

	ErrDeviceMismatch   = errors.New("tensor is on a different device")
	ErrUnsupportedDType = errors.New("element type not supported by backend")
	ErrNoGPU            = errors.New("gpu unavailable")
	ErrInvalidSize      = errors.New("sizes must be positive")

	// ErrUnsortedSequences is returned by TransposeSequence when sequences
	// are not ordered by non-increasing length.
	ErrUnsortedSequences = errors.New("sequences must be sorted by descending length")
)

// ShapeError describes a dimension mismatch in a tensor operation.
type ShapeError struct {
	Op   string
	Want []int // -1 marks a free dimension
	Got  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

func shapeErr(op string, want, got []int) error {
	return &ShapeError{Op: op, Want: want, Got: append([]int(nil), got...)}
}
