// Package testcond polls for conditions in tests that settle asynchronously.
package testcond

import (
	"fmt"
	"time"
)

// WaitForCondition evaluates eval every interval until it holds. It gives up
// once timeout elapses, after one final evaluation at the deadline.
func WaitForCondition(eval func() bool, interval time.Duration, timeout time.Duration) error {
	if eval() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	attempts := 1
	for {
		select {
		case <-ticker.C:
			attempts++
			if eval() {
				return nil
			}
		case <-deadline.C:
			if eval() {
				return nil
			}
			return fmt.Errorf("condition not met after %v (%d attempts)", timeout, attempts+1)
		}
	}
}
