package service

import (
	"context"
	"net"
	"time"

	useSvc "ikedadada/go-onehop/internal/usecase/service"
)

// TCPDialer implements service.Dialer over raw TCP connections.
type TCPDialer struct {
	d net.Dialer
}

// NewTCPDialer returns a Dialer using TCP with the given keepalive period.
func NewTCPDialer(keepAlive time.Duration) useSvc.Dialer {
	return &TCPDialer{d: net.Dialer{KeepAlive: keepAlive}}
}

func (t *TCPDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := t.d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}
