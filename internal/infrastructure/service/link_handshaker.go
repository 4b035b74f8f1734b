package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"slices"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	useSvc "ikedadada/go-onehop/internal/usecase/service"
)

// SupportedLinkVersions are the link protocol versions we speak.
var SupportedLinkVersions = []uint16{4, 5}

// LinkHandshaker runs the VERSIONS / CERTS / NETINFO exchange.
type LinkHandshaker struct {
	log *slog.Logger
}

func NewLinkHandshaker(log *slog.Logger) useSvc.LinkHandshaker {
	if log == nil {
		log = slog.Default()
	}
	return &LinkHandshaker{log: log}
}

// Handshake is the initiator side. Expiry of ctx aborts pending I/O and is
// reported as ctx.Err().
func (h *LinkHandshaker) Handshake(ctx context.Context, conn net.Conn, expected vo.RelayIdentity) (useSvc.LinkInfo, error) {
	stop := bindDeadline(ctx, conn)
	defer stop()

	info, err := h.handshake(conn, expected)
	if err != nil {
		return useSvc.LinkInfo{}, fmt.Errorf("link handshake: %w", deadlineErr(ctx, err))
	}
	return info, nil
}

// deadlineErr reports a deadline-driven I/O failure as the context error.
func deadlineErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

func (h *LinkHandshaker) handshake(conn net.Conn, expected vo.RelayIdentity) (useSvc.LinkInfo, error) {
	if err := entity.WriteCell(conn, &entity.Cell{Cmd: vo.CmdVersions, Payload: encodeVersions(SupportedLinkVersions)}); err != nil {
		return useSvc.LinkInfo{}, err
	}

	cell, err := expectCell(conn, vo.CmdVersions)
	if err != nil {
		return useSvc.LinkInfo{}, err
	}
	version, err := negotiateVersion(cell.Payload)
	if err != nil {
		return useSvc.LinkInfo{}, err
	}

	cell, err = expectCell(conn, vo.CmdCerts)
	if err != nil {
		return useSvc.LinkInfo{}, err
	}
	id, err := vo.RelayIdentityFromBytes(cell.Payload)
	if err != nil {
		return useSvc.LinkInfo{}, fmt.Errorf("certs: %w", err)
	}
	if !id.Equal(expected) {
		return useSvc.LinkInfo{}, fmt.Errorf("%w: want %s, got %s", useSvc.ErrIdentityMismatch, expected, id)
	}

	if _, err := expectCell(conn, vo.CmdNetinfo); err != nil {
		return useSvc.LinkInfo{}, err
	}
	if err := entity.WriteCell(conn, &entity.Cell{Cmd: vo.CmdNetinfo, Payload: encodeNetinfo(conn.RemoteAddr())}); err != nil {
		return useSvc.LinkInfo{}, err
	}
	h.log.Debug("link established", "relay", id.String(), "version", version)
	return useSvc.LinkInfo{Version: version, Identity: id}, nil
}

// NewLinkAcceptor returns the responder side for relays.
func NewLinkAcceptor(log *slog.Logger) useSvc.LinkAcceptor {
	if log == nil {
		log = slog.Default()
	}
	return &LinkHandshaker{log: log}
}

func (h *LinkHandshaker) Accept(ctx context.Context, conn net.Conn, identity vo.RelayIdentity) (uint16, error) {
	v, err := AcceptLink(ctx, conn, identity)
	if err == nil {
		h.log.Debug("link accepted", "remote", conn.RemoteAddr().String(), "version", v)
	}
	return v, err
}

// AcceptLink is the responder side used by the relay.
func AcceptLink(ctx context.Context, conn net.Conn, identity vo.RelayIdentity) (uint16, error) {
	stop := bindDeadline(ctx, conn)
	defer stop()

	v, err := acceptLink(conn, identity)
	if err != nil {
		return 0, fmt.Errorf("accept link: %w", deadlineErr(ctx, err))
	}
	return v, nil
}

func acceptLink(conn net.Conn, identity vo.RelayIdentity) (uint16, error) {
	cell, err := expectCell(conn, vo.CmdVersions)
	if err != nil {
		return 0, err
	}
	version, err := negotiateVersion(cell.Payload)
	if err != nil {
		return 0, err
	}
	for _, c := range []*entity.Cell{
		{Cmd: vo.CmdVersions, Payload: encodeVersions(SupportedLinkVersions)},
		{Cmd: vo.CmdCerts, Payload: identity.Bytes()},
		{Cmd: vo.CmdNetinfo, Payload: encodeNetinfo(conn.RemoteAddr())},
	} {
		if err := entity.WriteCell(conn, c); err != nil {
			return 0, err
		}
	}
	if _, err := expectCell(conn, vo.CmdNetinfo); err != nil {
		return 0, err
	}
	return version, nil
}

// bindDeadline makes conn I/O fail once ctx is done and clears the deadline
// again when the returned func is called.
func bindDeadline(ctx context.Context, conn net.Conn) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	return func() {
		if stop() {
			_ = conn.SetDeadline(time.Time{})
		}
	}
}

// expectCell reads the next non-padding cell and checks its command.
func expectCell(conn net.Conn, want vo.CellCommand) (*entity.Cell, error) {
	for {
		c, err := entity.ReadCell(conn)
		if err != nil {
			return nil, err
		}
		if c.Cmd == vo.CmdPadding {
			continue
		}
		if c.Cmd != want || !c.CircID.IsZero() {
			return nil, fmt.Errorf("expected %s, got %s on circuit %s", want, c.Cmd, c.CircID)
		}
		return c, nil
	}
}

func encodeVersions(vs []uint16) []byte {
	out := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func negotiateVersion(payload []byte) (uint16, error) {
	if len(payload) == 0 || len(payload)%2 != 0 {
		return 0, fmt.Errorf("malformed VERSIONS payload (%d bytes)", len(payload))
	}
	var best uint16
	for i := 0; i < len(payload); i += 2 {
		v := binary.BigEndian.Uint16(payload[i:])
		if slices.Contains(SupportedLinkVersions, v) && v > best {
			best = v
		}
	}
	if best == 0 {
		return 0, errors.New("no common link protocol version")
	}
	return best, nil
}

// NETINFO: [TIME(4)] [ATYPE(1)] [ALEN(1)] [ADDR]
func encodeNetinfo(other net.Addr) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(time.Now().Unix()))
	ap, err := netip.ParseAddrPort(other.String())
	if err != nil {
		return append(buf, 0, 0)
	}
	a := ap.Addr().Unmap()
	if a.Is4() {
		buf = append(buf, 4, 4)
	} else {
		buf = append(buf, 6, 16)
	}
	return append(buf, a.AsSlice()...)
}
