package usecase_test

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/infrastructure/logger"
	"ikedadada/go-onehop/internal/infrastructure/repository"
	infraSvc "ikedadada/go-onehop/internal/infrastructure/service"
	"ikedadada/go-onehop/internal/usecase"
)

const testFingerprint = "0102030405060708090A0B0C0D0E0F1011121314"

// relayMode scripts the misbehaviour of a fakeRelay.
type relayMode struct {
	silentLink    bool
	silentCreate  bool
	destroyCreate bool
	endBegin      bool
	silentBegin   bool
}

// fakeRelay speaks just enough of the relay side for the usecase tests.
type fakeRelay struct {
	id      vo.RelayIdentity
	mode    relayMode
	padding atomic.Int32
}

func newFakeRelay(t *testing.T, mode relayMode) *fakeRelay {
	t.Helper()
	id, err := vo.ParseFingerprint(testFingerprint)
	if err != nil {
		t.Fatal(err)
	}
	return &fakeRelay{id: id, mode: mode}
}

func (r *fakeRelay) serve(conn net.Conn) {
	defer conn.Close()
	if r.mode.silentLink {
		_, _ = io.Copy(io.Discard, conn)
		return
	}
	if _, err := infraSvc.AcceptLink(context.Background(), conn, r.id); err != nil {
		return
	}
	cs := infraSvc.NewCryptoService()
	var cc entity.CellCrypto
	send := func(cid vo.CircuitID, cmd vo.RelayCommand, sid vo.StreamID, data []byte) {
		rc, _ := entity.NewRelayCell(cmd, sid, data)
		body, _ := rc.EncodeBody()
		cc.Encrypt(body)
		_ = entity.WriteCell(conn, &entity.Cell{CircID: cid, Cmd: vo.CmdRelay, Payload: body})
	}

	for {
		cell, err := entity.ReadCell(conn)
		if err != nil {
			return
		}
		switch cell.Cmd {
		case vo.CmdPadding:
			r.padding.Add(1)
		case vo.CmdCreateFast:
			switch {
			case r.mode.silentCreate:
			case r.mode.destroyCreate:
				_ = entity.WriteCell(conn, &entity.Cell{CircID: cell.CircID, Cmd: vo.CmdDestroy, Payload: []byte{byte(vo.DestroyResource)}})
			default:
				reply, c, err := cs.FastHandshakeRespond(cell.Payload)
				if err != nil {
					return
				}
				cc = c
				_ = entity.WriteCell(conn, &entity.Cell{CircID: cell.CircID, Cmd: vo.CmdCreatedFast, Payload: reply})
			}
		case vo.CmdRelay:
			if cc == nil || cc.Decrypt(cell.Payload) != nil {
				return
			}
			rc, err := entity.DecodeRelayBody(cell.Payload)
			if err != nil {
				return
			}
			if rc.Cmd != vo.RelayBegin {
				continue
			}
			switch {
			case r.mode.silentBegin:
			case r.mode.endBegin:
				send(cell.CircID, vo.RelayEnd, rc.StreamID, []byte{byte(vo.EndReasonConnectRefused)})
			default:
				send(cell.CircID, vo.RelayConnected, rc.StreamID, nil)
				send(cell.CircID, vo.RelayData, rc.StreamID, []byte("hello"))
				send(cell.CircID, vo.RelayEnd, rc.StreamID, []byte{byte(vo.EndReasonDone)})
			}
		}
	}
}

// pipeDialer counts dials and connects each one to the fake relay.
type pipeDialer struct {
	relay *fakeRelay
	delay time.Duration
	count atomic.Int32
}

func (d *pipeDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.count.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	client, server := net.Pipe()
	go d.relay.serve(server)
	return client, nil
}

// blockingDialer never connects.
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testManagerConfig() usecase.ChannelManagerConfig {
	return usecase.ChannelManagerConfig{
		ConnectTimeout:        time.Second,
		HandshakeTimeout:      time.Second,
		MaxCircuitsPerChannel: 16,
	}
}

func newTestManager(t *testing.T, d interface {
	DialContext(context.Context, string, string) (net.Conn, error)
}, cfg usecase.ChannelManagerConfig) usecase.ChannelManager {
	t.Helper()
	repo, err := repository.NewChannelRepository(8)
	if err != nil {
		t.Fatal(err)
	}
	m := usecase.NewChannelManager(cfg, d, infraSvc.NewLinkHandshaker(logger.Discard()), repo, nil, logger.Discard())
	t.Cleanup(func() { m.Close() })
	return m
}

func testChannelTarget(t *testing.T, port uint16) entity.ChannelTarget {
	t.Helper()
	id, _ := vo.ParseFingerprint(testFingerprint)
	ep, err := vo.ResolveAddress("127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	target, err := entity.NewChannelTarget(id, []vo.Endpoint{ep})
	if err != nil {
		t.Fatal(err)
	}
	return target
}

// within fails unless elapsed lies in [want, want+slack].
func within(t *testing.T, elapsed, want time.Duration) {
	t.Helper()
	const slack = time.Second
	if elapsed < want || elapsed > want+slack {
		t.Fatalf("elapsed %v, want within [%v, %v]", elapsed, want, want+slack)
	}
}
