package nn

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestComputeStepStats(t *testing.T) {
	s := computeStepStats([]float32{-1, 0, 2, 3})
	if s.Min != -1 || s.Max != 3 || s.Avg != 1 || s.Active != 2 || s.Total != 4 {
		t.Errorf("Unexpected stats %+v", s)
	}
	if empty := computeStepStats[float64](nil); empty.Total != 0 {
		t.Errorf("Expected empty stats, got %+v", empty)
	}
}

func TestChannelObserverDropsWhenFull(t *testing.T) {
	obs := NewChannelObserver(1)
	obs.OnStep(StepEvent{Step: 1})
	obs.OnStep(StepEvent{Step: 2}) // dropped
	obs.OnReset(2)

	if e := <-obs.Events; e.Step != 1 {
		t.Errorf("Expected step 1, got %d", e.Step)
	}
	select {
	case e := <-obs.Events:
		t.Errorf("Expected dropped event, got %+v", e)
	default:
	}
	if n := <-obs.Resets; n != 2 {
		t.Errorf("Expected reset after 2 steps, got %d", n)
	}
}

func TestHTTPObserverPostsEvent(t *testing.T) {
	received := make(chan StepEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e StepEvent
		if err := json.Unmarshal(body, &e); err == nil {
			received <- e
		}
	}))
	defer srv.Close()

	obs := NewHTTPObserver(srv.URL)
	obs.OnStep(StepEvent{Step: 7, Batch: 3, Output: []float64{1, 2}})

	select {
	case e := <-received:
		if e.Step != 7 || e.Batch != 3 {
			t.Errorf("Unexpected event %+v", e)
		}
		if e.Output != nil {
			t.Error("Raw output should not be posted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestHTTPObserverLiteral(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
	}))
	defer srv.Close()

	// Built without the constructor: no timeout set
	obs := &HTTPObserver{URL: srv.URL}
	obs.OnReset(4)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for reset post")
	}
}

func TestMultiObserver(t *testing.T) {
	a, b := NewChannelObserver(1), NewChannelObserver(1)
	m := MultiObserver{a, b}
	m.OnStep(StepEvent{Step: 3})
	m.OnReset(3)
	if (<-a.Events).Step != 3 || (<-b.Events).Step != 3 {
		t.Error("Both observers should receive the event")
	}
	if <-a.Resets != 3 || <-b.Resets != 3 {
		t.Error("Both observers should receive the reset")
	}
}
