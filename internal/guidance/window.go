package guidance

import "gonum.org/v1/gonum/stat"

// SmoothingWindow keeps the most recent turn-angle measurements up to a
// fixed capacity, evicting the oldest when full.
type SmoothingWindow struct {
	capacity int
	values   []float64
}

// NewSmoothingWindow returns an empty window. capacity must be positive.
func NewSmoothingWindow(capacity int) *SmoothingWindow {
	if capacity < 1 {
		panic("guidance: smoothing window capacity must be positive")
	}
	return &SmoothingWindow{capacity: capacity, values: make([]float64, 0, capacity)}
}

// Push appends v, evicting the oldest value if the window is full.
func (w *SmoothingWindow) Push(v float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.capacity-1]
	}
	w.values = append(w.values, v)
}

// Mean returns the arithmetic mean of the window. ok is false when empty.
func (w *SmoothingWindow) Mean() (mean float64, ok bool) {
	if len(w.values) == 0 {
		return 0, false
	}
	return stat.Mean(w.values, nil), true
}

func (w *SmoothingWindow) Len() int { return len(w.values) }
func (w *SmoothingWindow) Cap() int { return w.capacity }

// Values returns a copy of the window contents, oldest first.
func (w *SmoothingWindow) Values() []float64 {
	return append([]float64(nil), w.values...)
}

// Reset empties the window.
func (w *SmoothingWindow) Reset() {
	w.values = w.values[:0]
}
