package service

import (
	"context"
	"errors"
	"net"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// ErrIdentityMismatch means the relay proved a different identity than the
// one we asked for.
var ErrIdentityMismatch = errors.New("relay identity mismatch")

// LinkInfo is what a finished link handshake tells us about the peer.
type LinkInfo struct {
	Version  uint16
	Identity vo.RelayIdentity
}

// LinkHandshaker authenticates a freshly dialed connection. The handshake
// must stop when ctx is done.
type LinkHandshaker interface {
	Handshake(ctx context.Context, conn net.Conn, expected vo.RelayIdentity) (LinkInfo, error)
}

// LinkAcceptor runs the responder side of the link handshake and returns
// the negotiated version.
type LinkAcceptor interface {
	Accept(ctx context.Context, conn net.Conn, identity vo.RelayIdentity) (uint16, error)
}
