package recorder

import (
	"sync"
	"time"
)

// Recorder is an append-only collection of answer round-trip latencies,
// written concurrently by every synthetic participant. Samples are never
// removed; Mean is a snapshot over whatever has been appended so far.
type Recorder struct {
	samples []float64
	mu      sync.RWMutex
}

func New() *Recorder {
	return &Recorder{}
}

// Record appends one sample.
func (r *Recorder) Record(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d.Seconds())
	r.mu.Unlock()
}

func (r *Recorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Mean returns the arithmetic mean in seconds of the samples present at
// call time, and false when no sample has been recorded yet.
func (r *Recorder) Mean() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range r.samples {
		sum += s
	}
	return sum / float64(len(r.samples)), true
}

// Samples returns a copy of the current sequence.
func (r *Recorder) Samples() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]float64, len(r.samples))
	copy(out, r.samples)
	return out
}
