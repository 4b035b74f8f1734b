package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"ikedadada/go-onehop/internal/infrastructure/service"
)

func TestTCPDialer_DialContext(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	conn, err := service.NewTCPDialer(0).DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestTCPDialer_ClosedPort(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = service.NewTCPDialer(0).DialContext(ctx, "tcp", addr)
	if err == nil {
		t.Fatalf("expected refused connection")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("refusal reported as timeout: %v", err)
	}
}
