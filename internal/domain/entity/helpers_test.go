package entity_test

import (
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// plainCrypto leaves bodies unencrypted; Decrypt only checks recognized.
type plainCrypto struct{}

func (plainCrypto) Encrypt([]byte) {}
func (plainCrypto) Decrypt(b []byte) error {
	if b[entity.RelayRecognizedOff] != 0 || b[entity.RelayRecognizedOff+1] != 0 {
		return errors.New("unrecognized relay cell")
	}
	return nil
}

func testTarget(t *testing.T) entity.ChannelTarget {
	t.Helper()
	id, err := vo.ParseFingerprint("AABBCCDDEEFF00112233445566778899AABBCCDD")
	if err != nil {
		t.Fatal(err)
	}
	ep, err := vo.ResolveAddress("127.0.0.1", 9001)
	if err != nil {
		t.Fatal(err)
	}
	tg, err := entity.NewChannelTarget(id, []vo.Endpoint{ep})
	if err != nil {
		t.Fatal(err)
	}
	return tg
}

func testParams(t *testing.T) vo.CircuitParameters {
	t.Helper()
	p, err := vo.NewCircuitParameters(vo.AlgorithmFixedWindow,
		vo.FixedWindowParams{CircWindowStart: 1000, CircWindowMin: 100, CircWindowMax: 1000},
		vo.RoundTripParams{EwmaCwndPct: 50, EwmaMax: 10, EwmaSlowStartMax: 2, RttResetPct: 100},
		vo.CongestionWindowParams{CwndInit: 124, CwndIncPctSS: 100, CwndInc: 1, CwndIncRate: 31,
			CwndMin: 124, CwndMax: math.MaxUint32, SendmeIncrement: 31}, true)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// peer is the relay end of a net.Pipe. Its cells are read by a goroutine
// so channel writes never block the test.
type peer struct {
	t     *testing.T
	conn  net.Conn
	cells chan *entity.Cell
}

func newChannelPair(t *testing.T, maxCircs int) (*entity.Channel, *peer) {
	t.Helper()
	a, b := net.Pipe()
	ch := entity.NewChannel(a, testTarget(t), vo.UsageUserTraffic, 5, maxCircs, nil)
	p := &peer{t: t, conn: b, cells: make(chan *entity.Cell, 2048)}
	go func() {
		defer close(p.cells)
		for {
			c, err := entity.ReadCell(b)
			if err != nil {
				return
			}
			p.cells <- c
		}
	}()
	t.Cleanup(func() {
		ch.Close()
		b.Close()
	})
	return ch, p
}

func (p *peer) next() *entity.Cell {
	p.t.Helper()
	select {
	case c, ok := <-p.cells:
		if !ok {
			p.t.Fatalf("peer: connection closed")
		}
		return c
	case <-time.After(2 * time.Second):
		p.t.Fatalf("peer: no cell")
	}
	return nil
}

func (p *peer) nextRelay() (*entity.Cell, *entity.RelayCell) {
	p.t.Helper()
	c := p.next()
	if c.Cmd != vo.CmdRelay {
		return c, nil
	}
	rc, err := entity.DecodeRelayBody(c.Payload)
	if err != nil {
		p.t.Fatalf("peer: decode relay: %v", err)
	}
	return c, rc
}

func (p *peer) send(c *entity.Cell) {
	p.t.Helper()
	if err := entity.WriteCell(p.conn, c); err != nil {
		p.t.Fatalf("peer: write: %v", err)
	}
}

func (p *peer) sendRelay(cid vo.CircuitID, cmd vo.RelayCommand, sid vo.StreamID, data []byte) {
	p.t.Helper()
	rc, err := entity.NewRelayCell(cmd, sid, data)
	if err != nil {
		p.t.Fatal(err)
	}
	body, err := rc.EncodeBody()
	if err != nil {
		p.t.Fatal(err)
	}
	p.send(&entity.Cell{CircID: cid, Cmd: vo.CmdRelay, Payload: body})
}

// openCircuit runs a trivial CREATE_FAST exchange and completes the circuit.
func openCircuit(t *testing.T, ch *entity.Channel, p *peer) *entity.Circuit {
	t.Helper()
	pc, err := ch.NewCirc()
	if err != nil {
		t.Fatalf("new circ: %v", err)
	}
	if err := pc.Send(vo.CmdCreateFast, make([]byte, 20)); err != nil {
		t.Fatalf("send create: %v", err)
	}
	if c := p.next(); c.Cmd != vo.CmdCreateFast || c.CircID != pc.ID() {
		t.Fatalf("peer got %s on %s", c.Cmd, c.CircID)
	}
	return pc.Complete(plainCrypto{}, testParams(t))
}
