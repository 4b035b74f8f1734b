// file: internal/usecase/relay_usecase.go
package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ikedadada/go-onehop/internal/domain/entity"
	"ikedadada/go-onehop/internal/domain/repository"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/usecase/service"
)

// ---------- 設定 ----------

// RelayConfig describes the relay side of the protocol.
type RelayConfig struct {
	Identity         vo.RelayIdentity
	HandshakeTimeout time.Duration
	// ConnectTimeout bounds each exit connection.
	ConnectTimeout time.Duration
	// CircuitTTL destroys circuits that moved no cell for this long.
	CircuitTTL time.Duration
	// MaxCircuits per link; zero means unlimited.
	MaxCircuits int
}

// CircuitTableFactory makes the circuit table of one link.
type CircuitTableFactory func(ttl time.Duration, onEvict func(*entity.ConnState)) repository.CircuitTableRepository

// ---------- UseCase インターフェース ----------

// RelayUseCase serves client links as a single-hop exit relay.
type RelayUseCase interface {
	// ServeLink runs one link until the client hangs up or ctx is done.
	ServeLink(ctx context.Context, conn net.Conn) error
}

// ---------- 実装 ----------

type relayUseCaseImpl struct {
	cfg      RelayConfig
	acceptor service.LinkAcceptor
	crypto   service.CryptoService
	dialer   service.Dialer
	newTable CircuitTableFactory
	metrics  service.RelayMetrics
	log      *slog.Logger
}

// NewRelayUseCase wires a RelayUseCase.
func NewRelayUseCase(cfg RelayConfig, a service.LinkAcceptor, c service.CryptoService, d service.Dialer,
	newTable CircuitTableFactory, m service.RelayMetrics, log *slog.Logger) RelayUseCase {
	if m == nil {
		m = service.NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &relayUseCaseImpl{cfg: cfg, acceptor: a, crypto: c, dialer: d, newTable: newTable, metrics: m, log: log}
}

// relayLink serialises cell writes from the link loop and the exit pumps.
type relayLink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (l *relayLink) WriteCell(c *entity.Cell) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return entity.WriteCell(l.conn, c)
}

func (uc *relayUseCaseImpl) ServeLink(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	log := uc.log.With("remote", conn.RemoteAddr().String())

	hctx, cancel := context.WithTimeout(ctx, uc.cfg.HandshakeTimeout)
	version, err := uc.acceptor.Accept(hctx, conn, uc.cfg.Identity)
	cancel()
	if err != nil {
		return err
	}
	log.Debug("link open", "version", version)

	link := &relayLink{conn: conn}
	tbl := uc.newTable(uc.cfg.CircuitTTL, func(*entity.ConnState) { uc.metrics.RelayCircuitClosed() })
	lctx, lcancel := context.WithCancel(ctx)
	var pumps errgroup.Group
	defer func() {
		lcancel()
		tbl.Close()
		conn.Close()
		_ = pumps.Wait()
		log.Debug("link closed")
	}()

	for {
		cell, err := entity.ReadCell(conn)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		if err := uc.handleCell(lctx, link, tbl, &pumps, cell); err != nil {
			return err
		}
	}
}

func (uc *relayUseCaseImpl) handleCell(ctx context.Context, link *relayLink, tbl repository.CircuitTableRepository, pumps *errgroup.Group, cell *entity.Cell) error {
	switch cell.Cmd {
	case vo.CmdPadding:
		return nil
	case vo.CmdCreateFast:
		return uc.create(link, tbl, cell)
	case vo.CmdRelay:
		st, err := tbl.Find(cell.CircID)
		if err != nil {
			uc.log.Debug("relay cell for unknown circuit", "circ", cell.CircID.String())
			return nil
		}
		uc.relay(ctx, tbl, pumps, st, cell.Payload)
		return nil
	case vo.CmdDestroy:
		_ = tbl.Delete(cell.CircID)
		return nil
	case vo.CmdVersions, vo.CmdCerts, vo.CmdNetinfo:
		return fmt.Errorf("%w: %s after link handshake", entity.ErrProtocolViolation, cell.Cmd)
	default:
		return nil
	}
}

func (uc *relayUseCaseImpl) create(link *relayLink, tbl repository.CircuitTableRepository, cell *entity.Cell) error {
	log := uc.log.With("circ", cell.CircID.String())
	destroy := func(reason vo.DestroyReason) error {
		return link.WriteCell(&entity.Cell{CircID: cell.CircID, Cmd: vo.CmdDestroy, Payload: []byte{byte(reason)}})
	}

	if uc.cfg.MaxCircuits > 0 && tbl.Len() >= uc.cfg.MaxCircuits {
		log.Debug("circuit refused", "open", tbl.Len())
		return destroy(vo.DestroyResource)
	}
	if _, err := tbl.Find(cell.CircID); err == nil {
		log.Debug("circuit id reused")
		return destroy(vo.DestroyProtocol)
	}

	reply, crypto, err := uc.crypto.FastHandshakeRespond(cell.Payload)
	if err != nil {
		log.Debug("create_fast rejected", "err", err)
		return destroy(vo.DestroyProtocol)
	}
	st := entity.NewConnState(cell.CircID, link, crypto)
	if err := tbl.Add(cell.CircID, st); err != nil {
		return destroy(vo.DestroyInternal)
	}
	uc.metrics.RelayCircuitOpened()
	log.Debug("circuit created")
	return link.WriteCell(&entity.Cell{CircID: cell.CircID, Cmd: vo.CmdCreatedFast, Payload: reply})
}

func (uc *relayUseCaseImpl) destroy(tbl repository.CircuitTableRepository, st *entity.ConnState, reason vo.DestroyReason) {
	st.Destroy(reason)
	_ = tbl.Delete(st.ID())
}

func (uc *relayUseCaseImpl) relay(ctx context.Context, tbl repository.CircuitTableRepository, pumps *errgroup.Group, st *entity.ConnState, body []byte) {
	log := uc.log.With("circ", st.ID().String())
	rc, err := st.Decrypt(body)
	if err != nil {
		log.Debug("relay cell rejected", "err", err)
		uc.destroy(tbl, st, vo.DestroyProtocol)
		return
	}

	if rc.StreamID == 0 {
		if rc.Cmd == vo.RelaySendme {
			if err := st.Package().Add(); err != nil {
				log.Debug("sendme rejected", "err", err)
				uc.destroy(tbl, st, vo.DestroyProtocol)
			}
		}
		return
	}

	switch rc.Cmd {
	case vo.RelayBegin:
		uc.begin(ctx, pumps, st, rc)
	case vo.RelayData:
		if err := st.Deliver().Receive(); err != nil {
			log.Debug("deliver window", "err", err)
			uc.destroy(tbl, st, vo.DestroyProtocol)
			return
		}
		uc.toExit(st, rc)
		if st.Deliver().Consume() {
			if err := st.SendRelay(vo.RelaySendme, 0, nil); err != nil {
				log.Debug("sendme failed", "err", err)
			}
		}
	case vo.RelayEnd:
		_ = st.Streams().Remove(rc.StreamID)
	}
}

// toExit writes client data to the exit connection of rc's stream.
func (uc *relayUseCaseImpl) toExit(st *entity.ConnState, rc *entity.RelayCell) {
	conn, err := st.Streams().Get(rc.StreamID)
	if err != nil || conn == nil {
		return
	}
	n, err := conn.Write(rc.Data)
	uc.metrics.ObserveRelayed("exit", n)
	if err != nil && st.Streams().Remove(rc.StreamID) == nil {
		_ = st.SendRelay(vo.RelayEnd, rc.StreamID, []byte{byte(vo.EndReasonMisc)})
	}
}

func (uc *relayUseCaseImpl) begin(ctx context.Context, pumps *errgroup.Group, st *entity.ConnState, rc *entity.RelayCell) {
	sid := rc.StreamID
	target, err := ParseBeginTarget(rc.Data)
	if err != nil {
		uc.log.Debug("bad begin", "circ", st.ID().String(), "stream", sid.UInt16(), "err", err)
		_ = st.SendRelay(vo.RelayEnd, sid, []byte{byte(vo.EndReasonMisc)})
		return
	}
	if err := st.Streams().Reserve(sid); err != nil {
		_ = st.SendRelay(vo.RelayEnd, sid, []byte{byte(vo.EndReasonMisc)})
		return
	}
	pumps.Go(func() error {
		uc.serveStream(ctx, st, sid, target)
		return nil
	})
}

// serveStream connects to target and pumps its bytes back to the client
// until either side ends the stream.
func (uc *relayUseCaseImpl) serveStream(ctx context.Context, st *entity.ConnState, sid vo.StreamID, target string) {
	log := uc.log.With("circ", st.ID().String(), "stream", sid.UInt16(), "target", target)

	dctx, cancel := context.WithTimeout(ctx, uc.cfg.ConnectTimeout)
	conn, err := uc.dialer.DialContext(dctx, "tcp", target)
	cancel()
	if err != nil {
		log.Debug("exit connect failed", "err", err)
		if st.Streams().Remove(sid) == nil {
			_ = st.SendRelay(vo.RelayEnd, sid, []byte{byte(endReasonFor(err))})
		}
		return
	}
	if err := st.Streams().Attach(sid, conn); err != nil {
		conn.Close()
		return
	}
	if err := st.SendRelay(vo.RelayConnected, sid, nil); err != nil {
		_ = st.Streams().Remove(sid)
		return
	}
	log.Debug("exit connected")

	buf := make([]byte, entity.MaxRelayDataSize)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			if err := st.Package().Take(ctx); err != nil {
				_ = st.Streams().Remove(sid)
				return
			}
			if err := st.SendRelay(vo.RelayData, sid, buf[:n]); err != nil {
				_ = st.Streams().Remove(sid)
				return
			}
			uc.metrics.ObserveRelayed("client", n)
		}
		if rerr != nil {
			// A failed Remove means the client ended the stream first.
			if st.Streams().Remove(sid) == nil {
				_ = st.SendRelay(vo.RelayEnd, sid, []byte{byte(vo.EndReasonDone)})
			}
			log.Debug("exit closed", "err", rerr)
			return
		}
	}
}

// ParseBeginTarget extracts host:port from a RELAY_BEGIN body.
func ParseBeginTarget(data []byte) (string, error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", errors.New("begin: missing terminator")
	}
	addr := string(data[:i])
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	if host == "" {
		return "", errors.New("begin: empty host")
	}
	if p, err := strconv.ParseUint(port, 10, 16); err != nil || p == 0 {
		return "", fmt.Errorf("begin: bad port %q", port)
	}
	return addr, nil
}

func endReasonFor(err error) vo.EndReason {
	var dnsErr *net.DNSError
	var ne net.Error
	switch {
	case errors.As(err, &dnsErr):
		return vo.EndReasonResolveFailed
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return vo.EndReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return vo.EndReasonConnectRefused
	default:
		return vo.EndReasonMisc
	}
}
