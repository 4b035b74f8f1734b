package service

import (
	"context"
	"net"
)

// Dialer opens the TCP connection a channel runs over.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}
