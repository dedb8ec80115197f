package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// StageStats summarizes the retained samples of one pipeline stage.
type StageStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
}

type StageSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Marks       map[string]int `json:"marks,omitempty"`
}

// StageWindow keeps the last N latency samples per pipeline stage plus
// counters for notable events, for the /debug/stages endpoint.
type StageWindow struct {
	mu    sync.Mutex
	size  int
	rings map[string]*sampleRing
	marks map[string]int
}

type sampleRing struct {
	values []float64
	next   int
	full   bool
	last   float64
}

func NewStageWindow(size int) *StageWindow {
	if size <= 0 {
		size = 256
	}
	return &StageWindow{size: size, rings: make(map[string]*sampleRing), marks: make(map[string]int)}
}

func (w *StageWindow) Observe(stage string, d time.Duration) {
	if w == nil || stage == "" || d < 0 {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &sampleRing{values: make([]float64, w.size)}
		w.rings[stage] = r
	}
	r.values[r.next] = ms
	r.last = ms
	r.next = (r.next + 1) % w.size
	if r.next == 0 {
		r.full = true
	}
}

func (w *StageWindow) Mark(name string) {
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	w.marks[name]++
	w.mu.Unlock()
}

func (w *StageWindow) Snapshot() StageSnapshot {
	snap := StageSnapshot{GeneratedAt: time.Now().UTC()}
	if w == nil {
		return snap
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snap.WindowSize = w.size
	for stage, r := range w.rings {
		n := r.next
		if r.full {
			n = len(r.values)
		}
		if n == 0 {
			continue
		}
		samples := slices.Clone(r.values[:n])
		slices.Sort(samples)
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:   stage,
			Samples: n,
			LastMS:  round2(r.last),
			AvgMS:   round2(sum / float64(n)),
			P50MS:   round2(quantile(samples, 0.50)),
			P95MS:   round2(quantile(samples, 0.95)),
		})
	}
	slices.SortFunc(snap.Stages, func(a, b StageStats) int {
		switch {
		case a.Stage < b.Stage:
			return -1
		case a.Stage > b.Stage:
			return 1
		}
		return 0
	})
	if len(w.marks) > 0 {
		snap.Marks = make(map[string]int, len(w.marks))
		for k, v := range w.marks {
			snap.Marks[k] = v
		}
	}
	return snap
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
