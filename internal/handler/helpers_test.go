package handler_test

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/handler"
	"ikedadada/go-onehop/internal/infrastructure/logger"
	"ikedadada/go-onehop/internal/infrastructure/repository"
	infraSvc "ikedadada/go-onehop/internal/infrastructure/service"
	"ikedadada/go-onehop/internal/usecase"
)

const relayFingerprint = "AABBCCDDEEFF00112233445566778899AABBCCDD"

// redirectDialer sends every exit connection to one local address.
type redirectDialer struct {
	addr string
}

func (d redirectDialer) DialContext(ctx context.Context, network, _ string) (net.Conn, error) {
	var nd net.Dialer
	return nd.DialContext(ctx, network, d.addr)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func portOf(t *testing.T, a net.Addr) uint16 {
	t.Helper()
	_, p, err := net.SplitHostPort(a.String())
	if err != nil {
		t.Fatal(err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return uint16(n)
}

// closedPort returns a local port nobody listens on.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	p := portOf(t, ln.Addr())
	ln.Close()
	return p
}

// startRelay serves a relay on a local port whose exit connections all go
// to exitAddr.
func startRelay(t *testing.T, exitAddr string) uint16 {
	t.Helper()
	id, err := vo.ParseFingerprint(relayFingerprint)
	if err != nil {
		t.Fatal(err)
	}
	uc := usecase.NewRelayUseCase(usecase.RelayConfig{
		Identity:         id,
		HandshakeTimeout: time.Second,
		ConnectTimeout:   time.Second,
		CircuitTTL:       time.Minute,
	}, infraSvc.NewLinkAcceptor(logger.Discard()), infraSvc.NewCryptoService(),
		redirectDialer{addr: exitAddr}, repository.NewCircuitTableRepository, nil, logger.Discard())

	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = handler.NewRelayHandler(uc, logger.Discard()).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return portOf(t, ln.Addr())
}

// serveHTTP answers every connection with handle and returns the address.
func serveHTTP(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln := listen(t)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				handle(c)
			}()
		}
	}()
	return ln.Addr().String()
}

// countingDialer dials for real and records how many connections it opened
// and how many of them carried any bytes from the client.
type countingDialer struct {
	dials   atomic.Int32
	written atomic.Int32
}

func (d *countingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.dials.Add(1)
	var nd net.Dialer
	c, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: c, d: d}, nil
}

type countingConn struct {
	net.Conn
	d    *countingDialer
	once sync.Once
}

func (c *countingConn) Write(p []byte) (int, error) {
	c.once.Do(func() { c.d.written.Add(1) })
	return c.Conn.Write(p)
}
