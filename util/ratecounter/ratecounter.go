// Package ratecounter counts events over a sliding window of fixed buckets.
package ratecounter

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

type bucket struct {
	epoch int64
	count uint64
}

// Rate tracks events in buckets of interval, keeping enough buckets to cover
// window. The zero value is not usable, use New.
type Rate struct {
	interval time.Duration
	clock    func() time.Time
	total    *atomic.Uint64

	mu      sync.Mutex
	buckets []bucket
}

func New(interval, window time.Duration) *Rate {
	return newWithClock(interval, window, time.Now)
}

func newWithClock(interval, window time.Duration, clock func() time.Time) *Rate {
	if interval <= 0 {
		interval = time.Second
	}
	n := int((window + interval - 1) / interval)
	if n < 1 {
		n = 1
	}
	return &Rate{
		interval: interval,
		clock:    clock,
		total:    atomic.NewUint64(0),
		buckets:  make([]bucket, n),
	}
}

func (r *Rate) epoch() int64 {
	return r.clock().UnixNano() / int64(r.interval)
}

func (r *Rate) Increment() {
	r.Add(1)
}

func (r *Rate) Add(n uint64) {
	r.total.Add(n)

	e := r.epoch()
	r.mu.Lock()
	b := &r.buckets[e%int64(len(r.buckets))]
	if b.epoch != e {
		b.epoch, b.count = e, 0
	}
	b.count += n
	r.mu.Unlock()
}

// Total returns every event counted since creation
func (r *Rate) Total() uint64 {
	return r.total.Load()
}

// RatePer returns the average number of events per unit over the window,
// excluding the bucket still being filled
func (r *Rate) RatePer(unit time.Duration) float64 {
	e := r.epoch()
	oldest := e - int64(len(r.buckets))

	var sum uint64
	r.mu.Lock()
	for _, b := range r.buckets {
		if b.epoch > oldest && b.epoch < e {
			sum += b.count
		}
	}
	r.mu.Unlock()

	span := time.Duration(len(r.buckets)-1) * r.interval
	if span <= 0 {
		span = r.interval
	}
	return float64(sum) * float64(unit) / float64(span)
}
