package nn

// LSTM gate layout.
//
// The pre-activation fed to Backend.LSTM holds 4*S values per row, grouped
// into contiguous chunks of S in this order:
//
//	[ input | forget | output | candidate ]
//
// For each row r < B and unit j:
//
//	i = sigmoid(g[r, j])
//	f = sigmoid(g[r, S+j])
//	o = sigmoid(g[r, 2S+j])
//	a = tanh(g[r, 3S+j])
//	c'[r, j] = f*c[r, j] + i*a
//	h[r, j]  = o*tanh(c'[r, j])
//
// Rows r >= B of the previous cell are copied into c' unchanged.
const (
	GateInput = iota
	GateForget
	GateOutput
	GateCandidate

	numGates = 4
)

// GateChunk returns the [lo, hi) column range of gate within a row of
// 4*size pre-activations.
func GateChunk(gate, size int) (lo, hi int) {
	return gate * size, (gate + 1) * size
}

// moveTensor transfers t from one backend's device to another's.
// A tensor already resident on the target device is returned unchanged.
func moveTensor[T Float](from, to Backend[T], t *Tensor[T]) (*Tensor[T], error) {
	if t.Device() == to.Device() {
		return t, nil
	}
	host, err := from.Download(t)
	if err != nil {
		return nil, err
	}
	return to.Upload(host)
}

// releaseIfNew frees t unless it is the same tensor as orig.
func releaseIfNew[T Numeric](t, orig *Tensor[T]) {
	if t != nil && t != orig {
		t.Release()
	}
}
