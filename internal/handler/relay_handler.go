package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"ikedadada/go-onehop/internal/usecase"
)

// RelayHandler accepts client links and serves each one on its own goroutine.
type RelayHandler struct {
	uc  usecase.RelayUseCase
	log *slog.Logger
}

// NewRelayHandler creates a handler around the relay use case.
func NewRelayHandler(uc usecase.RelayUseCase, log *slog.Logger) *RelayHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RelayHandler{uc: uc, log: log}
}

// Serve accepts links on ln until ctx is done or ln fails, then waits for
// the open links to wind down. It closes ln.
func (h *RelayHandler) Serve(ctx context.Context, ln net.Listener) error {
	lctx, cancel := context.WithCancel(ctx)
	var links errgroup.Group
	defer links.Wait()
	defer cancel()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	h.log.Info("relay listening", "addr", ln.Addr().String())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		links.Go(func() error {
			h.ServeConn(lctx, c)
			return nil
		})
	}
}

// ServeConn handles one client link.
func (h *RelayHandler) ServeConn(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	h.log.Debug("link accepted", "remote", remote)
	if err := h.uc.ServeLink(ctx, c); err != nil {
		h.log.Info("link failed", "remote", remote, "err", err)
		return
	}
	h.log.Debug("link done", "remote", remote)
}
