package testcond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestWaitForCondition(t *testing.T) {
	as := require.New(t)

	calls := atomic.NewInt32(0)
	as.NoError(WaitForCondition(func() bool {
		return calls.Inc() >= 3
	}, time.Millisecond, time.Second))
	as.Equal(int32(3), calls.Load())

	err := WaitForCondition(func() bool {
		return false
	}, time.Millisecond*5, time.Millisecond*20)
	as.ErrorContains(err, "condition not met")
}
