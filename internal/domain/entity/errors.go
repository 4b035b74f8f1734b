package entity

import (
	"errors"
	"fmt"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

var (
	ErrChannelClosed     = errors.New("channel closed")
	ErrCircuitClosed     = errors.New("circuit closed")
	ErrStreamClosed      = errors.New("stream closed")
	ErrTooManyCircuits   = errors.New("too many circuits on channel")
	ErrWindowClosed      = errors.New("flow control window closed")
	ErrProtocolViolation = errors.New("protocol violation")
)

// DestroyedError is returned once the peer tears a circuit down.
type DestroyedError struct {
	Reason vo.DestroyReason
}

func (e *DestroyedError) Error() string {
	return fmt.Sprintf("circuit destroyed by peer: %s", e.Reason)
}

// EndError is returned when the peer ends a stream.
type EndError struct {
	Reason vo.EndReason
}

func (e *EndError) Error() string {
	return fmt.Sprintf("stream ended by peer: %s", e.Reason)
}
