package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestStatusFor(t *testing.T) {
	allDown := fmt.Errorf("%w: %w", ring.ErrReplicasFailed, multierr.Combine(
		fmt.Errorf("%w: a", ring.ErrPeerUnreachable),
		fmt.Errorf("%w: b", ring.ErrPeerUnreachable),
	))

	tables := []struct {
		err    error
		status int
	}{
		{err: ring.ErrKeyNotFound, status: http.StatusNotFound},
		{err: fmt.Errorf("%w: 1.2.3.4:5", ring.ErrDuplicateNodeID), status: http.StatusConflict},
		{err: ring.ErrSelfJoin, status: http.StatusBadRequest},
		{err: ring.ErrInvalidRange, status: http.StatusBadRequest},
		{err: ring.ErrMalformedPayload, status: http.StatusBadRequest},
		{err: fmt.Errorf("fetching membership: %w", ring.ErrPeerUnreachable), status: http.StatusBadGateway},
		{err: allDown, status: http.StatusServiceUnavailable},
		{err: ring.ErrNodeNotStarted, status: http.StatusServiceUnavailable},
		{err: ring.ErrInvalidStateChange, status: http.StatusServiceUnavailable},
		{err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	for _, table := range tables {
		t.Run(table.err.Error(), func(t *testing.T) {
			as := require.New(t)
			as.Equal(table.status, statusFor(table.err))
		})
	}
}
