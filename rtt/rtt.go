package rtt

import (
	"sync"
	"time"

	"go.miragespace.co/keyval/spec/rtt"

	"github.com/montanaflynn/stats"
	"github.com/zhangyunhao116/skipmap"
)

type sample struct {
	at      time.Time
	latency time.Duration
}

// window is a fixed size ring of the most recent samples of one peer
type window struct {
	mu      sync.Mutex
	samples []sample
	next    int
	full    bool
}

func (w *window) add(s sample) {
	w.mu.Lock()
	w.samples[w.next] = s
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

func (w *window) since(cutoff time.Time) (values []float64, first, last time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, start := w.next, 0
	if w.full {
		n, start = len(w.samples), w.next
	}
	values = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		s := w.samples[(start+i)%len(w.samples)]
		if s.at.Before(cutoff) {
			continue
		}
		if first.IsZero() {
			first = s.at
		}
		last = s.at
		values = append(values, float64(s.latency))
	}
	return
}

// Instrumentation keeps the last samples of outbound call latency per peer
type Instrumentation struct {
	peers *skipmap.StringMap[*window]
	size  int
	clock func() time.Time
}

var _ rtt.Recorder = (*Instrumentation)(nil)

func NewInstrumentation(size int) *Instrumentation {
	if size < 1 {
		size = 1
	}
	return &Instrumentation{
		peers: skipmap.NewString[*window](),
		size:  size,
		clock: time.Now,
	}
}

func (i *Instrumentation) Record(peer string, latency time.Duration) {
	if latency < 0 {
		return
	}
	w, _ := i.peers.LoadOrStoreLazy(peer, func() *window {
		return &window{samples: make([]sample, i.size)}
	})
	w.add(sample{at: i.clock(), latency: latency})
}

// Snapshot summarizes the samples of peer recorded within past, or returns
// nil if there are none
func (i *Instrumentation) Snapshot(peer string, past time.Duration) *rtt.Statistics {
	w, ok := i.peers.Load(peer)
	if !ok {
		return nil
	}
	values, first, last := w.since(i.clock().Add(-past))
	if len(values) == 0 {
		return nil
	}

	// none of these fail on a non-empty input
	data := stats.Float64Data(values)
	min, _ := data.Min()
	mean, _ := data.Mean()
	median, _ := data.Median()
	p99, _ := data.Percentile(99)
	max, _ := data.Max()
	stddev, _ := data.StandardDeviation()

	return &rtt.Statistics{
		Since:   first,
		Until:   last,
		Samples: len(values),
		Min:     time.Duration(min),
		Mean:    time.Duration(mean),
		Median:  time.Duration(median),
		P99:     time.Duration(p99),
		Max:     time.Duration(max),
		StdDev:  time.Duration(stddev),
	}
}

func (i *Instrumentation) Drop(peer string) {
	i.peers.Delete(peer)
}
