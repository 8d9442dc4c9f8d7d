package ratecounter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRate(t *testing.T) {
	as := require.New(t)

	c := &clock{now: time.Unix(1000, 0)}
	r := newWithClock(time.Second, 5*time.Second, c.Now)

	as.Zero(r.RatePer(time.Second))

	// 10 events per second for 5 seconds
	for i := 0; i < 5; i++ {
		r.Add(10)
		c.Advance(time.Second)
	}
	as.Equal(uint64(50), r.Total())
	as.InDelta(10.0, r.RatePer(time.Second), 0.01)
	as.InDelta(600.0, r.RatePer(time.Minute), 0.1)

	// old buckets age out
	c.Advance(10 * time.Second)
	as.Zero(r.RatePer(time.Second))
	as.Equal(uint64(50), r.Total())
}

func TestConcurrentIncrement(t *testing.T) {
	as := require.New(t)

	r := New(time.Second, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Increment()
			}
		}()
	}
	wg.Wait()

	as.Equal(uint64(8000), r.Total())
}
