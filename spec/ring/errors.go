package ring

import (
	"context"
	"errors"
)

var (
	ErrPeerUnreachable    = errorDef("ring/rpc: peer is unreachable", true)

	ErrUnexpectedStatus   = errorDef("ring/rpc: peer responded with unexpected status", false)
	ErrMalformedPayload   = errorDef("ring/rpc: malformed payload", false)
	ErrInvalidRange       = errorDef("ring/kv: invalid hash range", false)
	ErrKeyNotFound        = errorDef("ring/kv: key not found", false)
	ErrReplicasFailed     = errorDef("ring/kv: no replica completed the operation", false)
	ErrDuplicateNodeID    = errorDef("ring/membership: node ID is already taken by a different address", false)
	ErrSelfJoin           = errorDef("ring/membership: node cannot join its own ring", false)
	ErrNodeNotStarted     = errorDef("ring: node is not running", false)
	ErrInvalidStateChange = errorDef("ring: node cannot handle the request at the moment", false)
)

func ErrorIsRetryable(err error) bool {
	for e, retryable := range retryableMap {
		if retryable && errors.Is(err, e) {
			return true
		}
	}
	return false
}

var retryableMap map[error]bool = map[error]bool{
	context.DeadlineExceeded: true,
}

func errorDef(str string, retryable bool) error {
	err := errors.New(str)
	retryableMap[err] = retryable
	return err
}
