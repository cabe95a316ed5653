package nn

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// LSTMState is the recurrent state carried between steps.
// Cell and Output are always both set; a missing state is a nil *LSTMState.
// Cell may have more rows than the last input batch when the batch shrank;
// Output always has as many rows as Cell.
type LSTMState[T Float] struct {
	Cell   *Tensor[T]
	Output *Tensor[T]
}

// Batch returns the number of rows carried by the state.
func (s *LSTMState[T]) Batch() int {
	if s == nil {
		return 0
	}
	return s.Output.Rows()
}

// StatefulLSTM is an LSTM unit with its own input ("upward") and recurrent
// ("lateral") projections that keeps cell and output state between calls to
// Step.
//
// The batch may shrink between steps, which happens when sequences of a
// length-sorted minibatch end at different times. Only the leading rows of
// the previous output feed the lateral projection; the remaining rows are
// passed through unchanged and appended to the new output.
//
// A cell is not safe for concurrent use.
type StatefulLSTM[T Float] struct {
	Upward  *Linear[T] // InSize -> 4*OutSize, with bias
	Lateral *Linear[T] // OutSize -> 4*OutSize, no bias

	stateSize int
	backend   Backend[T]
	state     *LSTMState[T]
	steps     uint64
	observer  StepObserver
}

// Option configures a StatefulLSTM at construction.
type Option func(*cellOptions)

type cellOptions struct {
	backend  any
	rng      *rand.Rand
	observer StepObserver
}

// WithBackend selects the backend the cell computes on. Its element type
// must match the cell's.
func WithBackend[T Float](b Backend[T]) Option {
	return func(o *cellOptions) {
		o.backend = b
	}
}

// WithRand sets the source used to initialize the weights.
func WithRand(rng *rand.Rand) Option {
	return func(o *cellOptions) {
		o.rng = rng
	}
}

// WithSeed initializes the weights from a fixed seed.
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithObserver attaches an observer notified after every step and reset.
func WithObserver(obs StepObserver) Option {
	return func(o *cellOptions) {
		o.observer = obs
	}
}

// NewStatefulLSTM creates a cell mapping inSize features to outSize units.
// Weights are created on the host and moved to the backend's device.
func NewStatefulLSTM[T Float](inSize, outSize int, opts ...Option) (*StatefulLSTM[T], error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("%w: in=%d out=%d", ErrInvalidSize, inSize, outSize)
	}

	o := cellOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var backend Backend[T] = NewCPUBackend[T]()
	if o.backend != nil {
		b, ok := o.backend.(Backend[T])
		if !ok {
			return nil, fmt.Errorf("%w: backend %T", ErrUnsupportedDType, o.backend)
		}
		backend = b
	}

	upward, err := NewLinear[T](inSize, numGates*outSize, false, o.rng)
	if err != nil {
		return nil, err
	}
	lateral, err := NewLinear[T](outSize, numGates*outSize, true, o.rng)
	if err != nil {
		return nil, err
	}

	cell := &StatefulLSTM[T]{
		Upward:    upward,
		Lateral:   lateral,
		stateSize: outSize,
		backend:   NewCPUBackend[T](),
		observer:  o.observer,
	}
	if err := cell.ToDevice(backend); err != nil {
		return nil, err
	}
	cell.ResetState()
	return cell, nil
}

// InSize returns the input feature dimension.
func (l *StatefulLSTM[T]) InSize() int { return l.Upward.InSize }

// OutSize returns the number of units, which is also the state size.
func (l *StatefulLSTM[T]) OutSize() int { return l.stateSize }

// Backend returns the backend the cell computes on.
func (l *StatefulLSTM[T]) Backend() Backend[T] { return l.backend }

// Steps returns how many steps have been committed since construction.
func (l *StatefulLSTM[T]) Steps() uint64 { return l.steps }

// State returns the current state and whether it is set.
func (l *StatefulLSTM[T]) State() (LSTMState[T], bool) {
	if l.state == nil {
		return LSTMState[T]{}, false
	}
	return *l.state, true
}

// CellState returns the cell memory, or nil before the first step.
// The tensor is owned by the cell and must be treated as read-only.
func (l *StatefulLSTM[T]) CellState() *Tensor[T] {
	if l.state == nil {
		return nil
	}
	return l.state.Cell
}

// OutputState returns the last output, or nil before the first step.
// The tensor is owned by the cell and must be treated as read-only.
func (l *StatefulLSTM[T]) OutputState() *Tensor[T] {
	if l.state == nil {
		return nil
	}
	return l.state.Output
}

// ResetState forgets the recurrent state. The previous cell tensor is
// released; outputs already returned by Step stay valid.
func (l *StatefulLSTM[T]) ResetState() {
	if l.state == nil {
		return
	}
	l.state.Cell.Release()
	l.state = nil
	if l.observer != nil {
		l.observer.OnReset(l.steps)
	}
}

// Step feeds x [batch, InSize] through the cell and stores the new state.
// The returned output has max(batch, previous batch) rows; rows past batch
// are carried from the previous output unchanged.
//
// A batch larger than the previous one fails with ErrBatchGrew. On any
// error the state is left as it was.
//
// On a GPU backend the returned tensor is also the cell's output state.
// It remains valid after the next Step and may be released by the caller
// once the cell has moved past it.
func (l *StatefulLSTM[T]) Step(x *Tensor[T]) (*Tensor[T], error) {
	start := time.Now()
	next, out, err := l.Forward(l.state, x)
	if err != nil {
		return nil, err
	}

	prev := l.state
	l.state = next
	l.steps++
	if prev != nil {
		prev.Cell.Release()
	}

	if l.observer != nil {
		l.notify(x.Rows(), out, time.Since(start))
	}
	return out, nil
}

// Forward computes the transition from state on input x without touching
// the cell. A nil state means no previous step.
func (l *StatefulLSTM[T]) Forward(state *LSTMState[T], x *Tensor[T]) (*LSTMState[T], *Tensor[T], error) {
	b := l.backend
	if x == nil {
		return nil, nil, shapeErr("step input", []int{-1, l.InSize()}, nil)
	}
	if x.Device() != b.Device() {
		return nil, nil, fmt.Errorf("step input on %s, cell on %s: %w", x.Device(), b.Device(), ErrDeviceMismatch)
	}
	if len(x.Shape) != 2 || x.Rows() < 1 || x.Cols() != l.InSize() {
		return nil, nil, shapeErr("step input", []int{-1, l.InSize()}, x.Shape)
	}
	batch := x.Rows()

	var prevCell, prevOut *Tensor[T]
	if state != nil {
		prevCell, prevOut = state.Cell, state.Output
		if prevCell == nil || prevOut == nil {
			return nil, nil, shapeErr("state", []int{-1, l.stateSize}, nil)
		}
		if prevOut.Cols() != l.stateSize || prevCell.Cols() != l.stateSize {
			return nil, nil, shapeErr("state", []int{-1, l.stateSize}, prevOut.Shape)
		}
		if prevCell.Rows() != prevOut.Rows() {
			return nil, nil, shapeErr("state cell", prevOut.Shape, prevCell.Shape)
		}
		if prevOut.Rows() < batch {
			return nil, nil, fmt.Errorf("%w: state has %d rows, input has %d", ErrBatchGrew, prevOut.Rows(), batch)
		}
	}

	gates, err := l.Upward.Apply(b, x)
	if err != nil {
		return nil, nil, fmt.Errorf("upward: %w", err)
	}

	var carried *Tensor[T]
	if prevOut != nil {
		head := prevOut
		if prevOut.Rows() > batch {
			head, carried, err = b.Split(prevOut, batch)
			if err != nil {
				gates.Release()
				return nil, nil, fmt.Errorf("split output: %w", err)
			}
			defer head.Release()
			defer carried.Release()
		}
		lat, err := l.Lateral.Apply(b, head)
		if err != nil {
			gates.Release()
			return nil, nil, fmt.Errorf("lateral: %w", err)
		}
		sum, err := b.Add(gates, lat)
		lat.Release()
		gates.Release()
		if err != nil {
			return nil, nil, fmt.Errorf("gate sum: %w", err)
		}
		gates = sum
	}
	defer gates.Release()

	cell := prevCell
	if cell == nil {
		cell, err = b.Zeros(batch, l.stateSize)
		if err != nil {
			return nil, nil, fmt.Errorf("zero cell: %w", err)
		}
		defer cell.Release()
	}

	newCell, h, err := b.LSTM(cell, gates)
	if err != nil {
		return nil, nil, fmt.Errorf("lstm: %w", err)
	}

	out := h
	if carried != nil {
		out, err = b.Concat(h, carried)
		h.Release()
		if err != nil {
			newCell.Release()
			return nil, nil, fmt.Errorf("concat carried: %w", err)
		}
	}
	return &LSTMState[T]{Cell: newCell, Output: out}, out, nil
}

// ToDevice moves weights and state onto b's device and makes b the cell's
// backend. Either everything moves or nothing does. Moving to the device
// the cell already uses keeps the existing tensors. Storage left behind on
// the old device is released, including the last output returned by Step.
func (l *StatefulLSTM[T]) ToDevice(b Backend[T]) error {
	if b == nil {
		return errors.New("nil backend")
	}
	from := l.backend

	upward, err := l.Upward.transfer(from, b)
	if err != nil {
		return fmt.Errorf("move upward to %s: %w", b.Device(), err)
	}
	lateral, err := l.Lateral.transfer(from, b)
	if err != nil {
		upward.release(l.Upward)
		return fmt.Errorf("move lateral to %s: %w", b.Device(), err)
	}

	var state *LSTMState[T]
	if l.state != nil {
		cell, err := moveTensor(from, b, l.state.Cell)
		if err == nil {
			var out *Tensor[T]
			out, err = moveTensor(from, b, l.state.Output)
			if err != nil {
				releaseIfNew(cell, l.state.Cell)
			} else {
				state = &LSTMState[T]{Cell: cell, Output: out}
			}
		}
		if err != nil {
			upward.release(l.Upward)
			lateral.release(l.Lateral)
			return fmt.Errorf("move state to %s: %w", b.Device(), err)
		}
	}

	l.Upward.release(upward)
	l.Lateral.release(lateral)
	if l.state != nil {
		releaseIfNew(l.state.Cell, state.Cell)
		releaseIfNew(l.state.Output, state.Output)
	}
	l.Upward, l.Lateral, l.state = upward, lateral, state
	l.backend = b
	return nil
}

// ToCPU moves the cell back to host memory.
func (l *StatefulLSTM[T]) ToCPU() error {
	if l.backend.Device() == DeviceCPU {
		return nil
	}
	return l.ToDevice(NewCPUBackend[T]())
}

func (l *StatefulLSTM[T]) notify(batch int, out *Tensor[T], d time.Duration) {
	host, err := l.backend.Download(out)
	if err != nil {
		return
	}
	rows := out.Rows()
	event := StepEvent{
		Step:       l.steps,
		Batch:      batch,
		StateBatch: rows,
		Carried:    rows - batch,
		Device:     l.backend.Device().String(),
		Stats:      computeStepStats(host.Data),
		Duration:   d,
	}
	if len(host.Data) <= 64 {
		event.Output = make([]float64, len(host.Data))
		for i, v := range host.Data {
			event.Output[i] = float64(v)
		}
	}
	l.observer.OnStep(event)
}
