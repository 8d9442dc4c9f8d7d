package gateway

import (
	"context"
	"errors"
	"net/http"

	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, ring.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, ring.ErrDuplicateNodeID):
		return http.StatusConflict
	case errors.Is(err, ring.ErrSelfJoin),
		errors.Is(err, ring.ErrInvalidRange),
		errors.Is(err, ring.ErrMalformedPayload):
		return http.StatusBadRequest
	// failed replicas carry their transport errors, check them first
	case errors.Is(err, ring.ErrReplicasFailed),
		errors.Is(err, ring.ErrNodeNotStarted),
		errors.Is(err, ring.ErrInvalidStateChange):
		return http.StatusServiceUnavailable
	case errors.Is(err, ring.ErrPeerUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.Logger.Warn("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	http.Error(w, err.Error(), status)
}
