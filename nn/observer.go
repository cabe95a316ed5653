package nn

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// StepObserver receives notifications from a StatefulLSTM.
// Implementations must not block; they run on the caller's goroutine.
type StepObserver interface {
	OnStep(event StepEvent)
	OnReset(steps uint64)
}

// StepStats summarizes the output of one step.
type StepStats struct {
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Active int     `json:"active"` // values above zero
	Total  int     `json:"total"`
}

// StepEvent describes one committed step.
type StepEvent struct {
	Step       uint64        `json:"step"`
	Batch      int           `json:"batch"`
	StateBatch int           `json:"state_batch"`
	Carried    int           `json:"carried"` // rows passed through without an update
	Device     string        `json:"device"`
	Stats      StepStats     `json:"stats"`
	Duration   time.Duration `json:"duration_ns"`
	Output     []float64     `json:"output,omitempty"`
}

// computeStepStats calculates summary statistics for an output slice.
func computeStepStats[T Float](data []T) StepStats {
	if len(data) == 0 {
		return StepStats{}
	}
	s := StepStats{Min: float64(data[0]), Max: float64(data[0]), Total: len(data)}
	var sum float64
	for _, v := range data {
		f := float64(v)
		sum += f
		if f > s.Max {
			s.Max = f
		}
		if f < s.Min {
			s.Min = f
		}
		if f > 0 {
			s.Active++
		}
	}
	s.Avg = sum / float64(len(data))
	return s
}

// =============================================================================
// Observer Implementations
// =============================================================================

// ConsoleObserver logs step events.
type ConsoleObserver struct {
	Verbose bool // If true, also log small outputs
}

func (o *ConsoleObserver) OnStep(event StepEvent) {
	log.Printf("[STEP] %d (%s): batch=%d state=%d carried=%d avg=%.4f min=%.4f max=%.4f (%v)",
		event.Step, event.Device, event.Batch, event.StateBatch, event.Carried,
		event.Stats.Avg, event.Stats.Min, event.Stats.Max, event.Duration)

	if o.Verbose && event.Output != nil && len(event.Output) <= 20 {
		log.Printf("       Output: %v", event.Output)
	}
}

func (o *ConsoleObserver) OnReset(steps uint64) {
	log.Printf("[RESET] after %d steps", steps)
}

// defaultHTTPTimeout keeps a slow endpoint from piling up goroutines.
const defaultHTTPTimeout = 100 * time.Millisecond

// HTTPObserver posts step events as JSON to an endpoint (for visualization).
// A zero Timeout uses a 100ms default.
type HTTPObserver struct {
	URL     string
	Timeout time.Duration
}

func NewHTTPObserver(url string) *HTTPObserver {
	return &HTTPObserver{
		URL:     url,
		Timeout: defaultHTTPTimeout,
	}
}

func (o *HTTPObserver) OnStep(event StepEvent) {
	// Raw outputs stay local to keep payloads small
	event.Output = nil
	o.send(event)
}

func (o *HTTPObserver) OnReset(steps uint64) {
	o.send(map[string]any{"reset": true, "steps": steps})
}

func (o *HTTPObserver) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &http.Client{Timeout: timeout}

	// Fire and forget
	go func() {
		resp, err := client.Post(o.URL, "application/json", bytes.NewReader(data))
		if err == nil && resp != nil {
			resp.Body.Close()
		}
	}()
}

// ChannelObserver sends events to a Go channel.
type ChannelObserver struct {
	Events chan StepEvent
	Resets chan uint64
}

func NewChannelObserver(bufferSize int) *ChannelObserver {
	return &ChannelObserver{
		Events: make(chan StepEvent, bufferSize),
		Resets: make(chan uint64, bufferSize),
	}
}

func (o *ChannelObserver) OnStep(event StepEvent) {
	select {
	case o.Events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}

func (o *ChannelObserver) OnReset(steps uint64) {
	select {
	case o.Resets <- steps:
	default:
	}
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []StepObserver

func (m MultiObserver) OnStep(event StepEvent) {
	for _, o := range m {
		o.OnStep(event)
	}
}

func (m MultiObserver) OnReset(steps uint64) {
	for _, o := range m {
		o.OnReset(steps)
	}
}
