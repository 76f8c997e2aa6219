package audio

import "sync"

// VadSample is one speaking/not-speaking observation from the microphone
// callback, stamped with seconds elapsed since the capture started.
type VadSample struct {
	Elapsed  float64
	Speaking bool
}

// vadTimeline is the bounded history of VAD samples. The audio callback
// is the sole writer; time-range queries come from network threads. The
// mutex is held only for the append or the scan, never across I/O.
type vadTimeline struct {
	mu      sync.Mutex
	samples []VadSample
	max     int
}

func newVadTimeline(max int) *vadTimeline {
	return &vadTimeline{samples: make([]VadSample, 0, max), max: max}
}

func (t *vadTimeline) append(s VadSample) {
	t.mu.Lock()
	if len(t.samples) >= t.max {
		// Drop the oldest in place so the backing array is reused and
		// the callback never allocates.
		n := copy(t.samples, t.samples[1:])
		t.samples = t.samples[:n]
	}
	t.samples = append(t.samples, s)
	t.mu.Unlock()
}

// ratio returns the fraction of retained samples in [from, to] that were
// speaking. No samples in range means 0: absence of evidence is treated
// as "not self".
func (t *vadTimeline) ratio(from, to float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total, speaking int
	for _, s := range t.samples {
		if s.Elapsed < from || s.Elapsed > to {
			continue
		}
		total++
		if s.Speaking {
			speaking++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(speaking) / float64(total)
}

// reset drops all samples and rebounds the retention limit. Used when a
// new capture session starts at a possibly different sample rate.
func (t *vadTimeline) reset(max int) {
	t.mu.Lock()
	if max < 1 {
		max = 1
	}
	t.max = max
	if cap(t.samples) < max {
		t.samples = make([]VadSample, 0, max)
	} else {
		t.samples = t.samples[:0]
	}
	t.mu.Unlock()
}

func (t *vadTimeline) clear() {
	t.mu.Lock()
	t.samples = t.samples[:0]
	t.mu.Unlock()
}

func (t *vadTimeline) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}
