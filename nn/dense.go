package nn

import (
	"math"
	"math/rand"
)

// Linear is an affine projection y = x @ W^T + b.
// W is [OutSize, InSize]; B is [OutSize] or nil when the projection has no bias.
type Linear[T Float] struct {
	InSize  int
	OutSize int
	W       *Tensor[T]
	B       *Tensor[T]
}

// NewLinear allocates a host projection. Weights are drawn from
// N(0, 1/inSize); the bias starts at zero.
func NewLinear[T Float](inSize, outSize int, nobias bool, rng *rand.Rand) (*Linear[T], error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, ErrInvalidSize
	}
	stddev := math.Sqrt(1.0 / float64(inSize))

	w := NewTensor[T](outSize, inSize)
	for i := range w.Data {
		w.Data[i] = T(rng.NormFloat64() * stddev)
	}

	l := &Linear[T]{InSize: inSize, OutSize: outSize, W: w}
	if !nobias {
		l.B = NewTensor[T](outSize)
	}
	return l, nil
}

// Apply projects a [B, InSize] batch to [B, OutSize] on backend b.
func (l *Linear[T]) Apply(b Backend[T], x *Tensor[T]) (*Tensor[T], error) {
	return b.Linear(x, l.W, l.B)
}

// HasBias reports whether the projection adds a bias term.
func (l *Linear[T]) HasBias() bool {
	return l.B != nil
}

// transfer returns a copy of l whose parameters live on to's device.
// Tensors already on that device are shared, not copied. On error every
// tensor allocated here is released.
func (l *Linear[T]) transfer(from, to Backend[T]) (*Linear[T], error) {
	w, err := moveTensor(from, to, l.W)
	if err != nil {
		return nil, err
	}
	out := &Linear[T]{InSize: l.InSize, OutSize: l.OutSize, W: w}
	if l.B != nil {
		bias, err := moveTensor(from, to, l.B)
		if err != nil {
			releaseIfNew(w, l.W)
			return nil, err
		}
		out.B = bias
	}
	return out, nil
}

// release frees parameters that are not shared with keep.
func (l *Linear[T]) release(keep *Linear[T]) {
	releaseIfNew(l.W, keep.W)
	if l.B != nil {
		releaseIfNew(l.B, keep.B)
	}
}
