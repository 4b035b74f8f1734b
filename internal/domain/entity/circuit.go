package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// ---- PendingCircuit --------------------------------------------------------

// PendingCircuit is a reserved circuit ID whose handshake has not finished.
// Exactly one of Complete or Abort must be called.
type PendingCircuit struct {
	ch   *Channel
	id   vo.CircuitID
	slot *circSlot
}

func (p *PendingCircuit) ID() vo.CircuitID  { return p.id }
func (p *PendingCircuit) Channel() *Channel { return p.ch }

// Send writes a handshake cell on the reserved circuit ID.
func (p *PendingCircuit) Send(cmd vo.CellCommand, payload []byte) error {
	cell, err := NewCell(p.id, cmd, payload)
	if err != nil {
		return err
	}
	return p.ch.Send(cell)
}

// Await returns the next non-padding cell addressed to the circuit.
func (p *PendingCircuit) Await(ctx context.Context) (*Cell, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case cell, ok := <-p.slot.in:
			if !ok {
				return nil, ErrChannelClosed
			}
			if cell.Cmd == vo.CmdPadding {
				continue
			}
			return cell, nil
		}
	}
}

// Abort sends DESTROY (unless reason is DestroyNone) and frees the ID.
func (p *PendingCircuit) Abort(reason vo.DestroyReason) {
	if reason != vo.DestroyNone && p.ch.IsUsable() {
		_ = p.Send(vo.CmdDestroy, []byte{byte(reason)})
	}
	p.ch.release(p.id, p.slot)
}

// Complete turns the pending slot into an open circuit and starts its reactor.
func (p *PendingCircuit) Complete(crypto CellCrypto, params vo.CircuitParameters) *Circuit {
	c := &Circuit{
		id:      p.id,
		ch:      p.ch,
		slot:    p.slot,
		crypto:  crypto,
		params:  params,
		pkg:     NewPackageWindow(params.InitialWindow(), params.MaxWindow(), params.SendmeIncrement()),
		deliver: NewDeliverWindow(int(params.FixedWindow().CircWindowStart), vo.CircWindowIncrement),
		streams: make(map[vo.StreamID]*Stream),
		nextSID: 0,
		done:    make(chan struct{}),
		log:     p.ch.log.With("circ", p.id.String()),
	}
	go c.reactor()
	return c
}

// ---- Circuit ---------------------------------------------------------------

// Circuit is an established single-hop circuit.
type Circuit struct {
	id     vo.CircuitID
	ch     *Channel
	slot   *circSlot
	params vo.CircuitParameters
	log    *slog.Logger

	sendMu sync.Mutex // orders Encrypt with the write
	crypto CellCrypto

	pkg     *PackageWindow
	deliver *DeliverWindow

	mu              sync.Mutex
	streams         map[vo.StreamID]*Stream
	nextSID         vo.StreamID
	closed          bool
	err             error
	closeOnLastDone bool

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Circuit) ID() vo.CircuitID                         { return c.id }
func (c *Circuit) Channel() *Channel                        { return c.ch }
func (c *Circuit) Params() vo.CircuitParameters             { return c.params }
func (c *Circuit) Done() <-chan struct{}                    { return c.done }
func (c *Circuit) PackageWindow() *PackageWindow            { return c.pkg }
func (c *Circuit) DeliverWindow() *DeliverWindow            { return c.deliver }
func (c *Circuit) String() string                           { return fmt.Sprintf("Circuit(%s) on %s", c.id, c.ch.Target()) }
func (c *Circuit) streamLogger(id vo.StreamID) *slog.Logger { return c.log.With("stream", id.UInt16()) }

// Err returns why the circuit closed, or nil while it is open.
func (c *Circuit) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Circuit) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseWhenIdle makes the circuit close itself once its last stream closes.
func (c *Circuit) CloseWhenIdle() {
	c.mu.Lock()
	c.closeOnLastDone = true
	idle := len(c.streams) == 0 && c.nextSID != 0
	c.mu.Unlock()
	if idle {
		c.Close()
	}
}

// NewStream registers a stream in the pending state. The caller sends BEGIN.
func (c *Circuit) NewStream(target string) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCircuitClosed
	}
	sid := c.nextSID.Next()
	for range 1 << 16 {
		if _, used := c.streams[sid]; !used {
			break
		}
		sid = sid.Next()
	}
	if _, used := c.streams[sid]; used {
		return nil, errors.New("no free stream id")
	}
	c.nextSID = sid
	s := newStream(c, sid, target)
	c.streams[sid] = s
	return s, nil
}

func (c *Circuit) removeStream(id vo.StreamID) {
	c.mu.Lock()
	delete(c.streams, id)
	closeNow := c.closeOnLastDone && len(c.streams) == 0
	c.mu.Unlock()
	if closeNow {
		c.Close()
	}
}

func (c *Circuit) NumStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// SendRelay encrypts and writes one relay cell.
func (c *Circuit) SendRelay(cmd vo.RelayCommand, sid vo.StreamID, data []byte) error {
	rc, err := NewRelayCell(cmd, sid, data)
	if err != nil {
		return err
	}
	body, err := rc.EncodeBody()
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.IsClosed() {
		return ErrCircuitClosed
	}
	c.crypto.Encrypt(body)
	return c.ch.Send(&Cell{CircID: c.id, Cmd: vo.CmdRelay, Payload: body})
}

// cellConsumed is called by streams for every DATA cell handed to the reader.
func (c *Circuit) cellConsumed() {
	if c.deliver.Consume() {
		if err := c.SendRelay(vo.RelaySendme, 0, nil); err != nil {
			c.log.Debug("sendme failed", "err", err)
		}
	}
}

// Close sends DESTROY and fails every open stream.
func (c *Circuit) Close() error {
	if !c.IsClosed() && c.ch.IsUsable() {
		c.sendMu.Lock()
		_ = c.ch.Send(&Cell{CircID: c.id, Cmd: vo.CmdDestroy, Payload: []byte{byte(vo.DestroyFinished)}})
		c.sendMu.Unlock()
	}
	c.teardown(ErrCircuitClosed)
	return nil
}

func (c *Circuit) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		streams := make([]*Stream, 0, len(c.streams))
		for _, s := range c.streams {
			streams = append(streams, s)
		}
		c.streams = make(map[vo.StreamID]*Stream)
		c.mu.Unlock()

		c.pkg.Close()
		for _, s := range streams {
			s.fail(cause)
		}
		c.ch.release(c.id, c.slot)
		close(c.done)
		c.log.Debug("circuit closed", "cause", cause)
	})
}

func (c *Circuit) reactor() {
	for {
		var cell *Cell
		var ok bool
		select {
		case <-c.done:
			return
		case cell, ok = <-c.slot.in:
		}
		if !ok {
			c.teardown(ErrChannelClosed)
			return
		}
		switch cell.Cmd {
		case vo.CmdRelay:
			if err := c.handleRelay(cell.Payload); err != nil {
				c.log.Debug("relay cell rejected", "err", err)
				c.protocolClose(err)
				return
			}
		case vo.CmdDestroy:
			reason := vo.DestroyNone
			if len(cell.Payload) > 0 {
				reason = vo.DestroyReason(cell.Payload[0])
			}
			c.teardown(&DestroyedError{Reason: reason})
			return
		case vo.CmdPadding:
		default:
			c.protocolClose(fmt.Errorf("%w: unexpected %s cell on open circuit", ErrProtocolViolation, cell.Cmd))
			return
		}
	}
}

func (c *Circuit) protocolClose(cause error) {
	if c.ch.IsUsable() {
		c.sendMu.Lock()
		_ = c.ch.Send(&Cell{CircID: c.id, Cmd: vo.CmdDestroy, Payload: []byte{byte(vo.DestroyProtocol)}})
		c.sendMu.Unlock()
	}
	c.teardown(cause)
}

func (c *Circuit) handleRelay(body []byte) error {
	if len(body) != RelayBodySize {
		return fmt.Errorf("%w: short relay cell", ErrProtocolViolation)
	}
	if err := c.crypto.Decrypt(body); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	rc, err := DecodeRelayBody(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	if rc.Cmd == vo.RelaySendme && rc.StreamID == 0 {
		return c.pkg.Add()
	}
	if rc.StreamID == 0 {
		return fmt.Errorf("%w: %s on stream 0", ErrProtocolViolation, rc.Cmd)
	}
	if rc.Cmd == vo.RelayData {
		if err := c.deliver.Receive(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	s, ok := c.streams[rc.StreamID]
	c.mu.Unlock()
	if !ok {
		// Late cells for a stream we already closed.
		if rc.Cmd == vo.RelayData {
			c.cellConsumed()
		}
		return nil
	}
	s.handle(rc)
	return nil
}
