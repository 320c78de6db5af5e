package util

import (
	"sync"

	"github.com/gammazero/deque"
)

// Stats summarizes the values currently held by a Window.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Window is a fixed-size rolling history. It is safe for concurrent use.
type Window struct {
	mu     sync.Mutex
	size   int
	values deque.Deque[float64]
}

// NewWindow creates a window holding at most size values. Sizes below one
// are raised to one.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	w := &Window{size: size}
	w.values.Grow(size)
	return w
}

// Add appends v, dropping the oldest value when the window is full.
func (w *Window) Add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.values.Len() == w.size {
		w.values.PopFront()
	}
	w.values.PushBack(v)
}

// Len returns the number of values held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.values.Len()
}

// Values returns the held values, oldest first.
func (w *Window) Values() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, w.values.Len())
	for i := range out {
		out[i] = w.values.At(i)
	}
	return out
}

// Stats computes min, max and mean. The zero Stats is returned for an empty
// window.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.values.Len()
	if n == 0 {
		return Stats{}
	}
	s := Stats{Count: n, Min: w.values.Front(), Max: w.values.Front()}
	var sum float64
	for i := 0; i < n; i++ {
		v := w.values.At(i)
		sum += v
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean = sum / float64(n)
	return s
}
