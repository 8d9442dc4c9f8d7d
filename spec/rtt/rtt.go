package rtt

import (
	"fmt"
	"time"
)

// Recorder keeps round trip samples per peer address
type Recorder interface {
	Record(peer string, latency time.Duration)
	Snapshot(peer string, past time.Duration) *Statistics
	Drop(peer string)
}

type Statistics struct {
	Since   time.Time
	Until   time.Time
	Samples int
	Min     time.Duration
	Mean    time.Duration
	Median  time.Duration
	P99     time.Duration
	Max     time.Duration
	StdDev  time.Duration
}

func (s *Statistics) String() string {
	if s == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d samples, min/mean/median/p99/max = %v/%v/%v/%v/%v (stddev %v)",
		s.Samples, s.Min, s.Mean, s.Median, s.P99, s.Max, s.StdDev)
}
