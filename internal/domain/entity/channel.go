package entity

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

const circQueueLen = 64

// circSlot is the inbound queue of one circuit. The channel reactor closes in
// when the channel dies; whoever releases the slot closes gone.
type circSlot struct {
	in   chan *Cell
	gone chan struct{}
}

// Channel is an authenticated link to one relay. A reactor goroutine reads
// cells off the connection and routes them to their circuit.
type Channel struct {
	id          vo.ChannelID
	target      ChannelTarget
	usage       vo.ChannelUsage
	conn        net.Conn
	linkVersion uint16
	maxCircs    int
	createdAt   time.Time
	log         *slog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	circs       map[vo.CircuitID]*circSlot
	closed      bool
	err         error
	unusedSince time.Time

	lastActivity atomic.Int64
	closeOnce    sync.Once
	done         chan struct{}
}

// NewChannel wraps an already handshaken connection and starts its reactor.
func NewChannel(conn net.Conn, target ChannelTarget, usage vo.ChannelUsage, linkVersion uint16, maxCircs int, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	c := &Channel{
		id:          vo.NewChannelID(),
		target:      target,
		usage:       usage,
		conn:        conn,
		linkVersion: linkVersion,
		maxCircs:    maxCircs,
		createdAt:   now,
		circs:       make(map[vo.CircuitID]*circSlot),
		unusedSince: now,
		done:        make(chan struct{}),
	}
	c.log = log.With("channel", c.id.String(), "relay", target.Identity().String())
	c.touch()
	go c.reactor()
	return c
}

func (c *Channel) ID() vo.ChannelID           { return c.id }
func (c *Channel) Target() ChannelTarget      { return c.target }
func (c *Channel) Identity() vo.RelayIdentity { return c.target.Identity() }
func (c *Channel) Usage() vo.ChannelUsage     { return c.usage }
func (c *Channel) LinkVersion() uint16        { return c.linkVersion }
func (c *Channel) CreatedAt() time.Time       { return c.createdAt }
func (c *Channel) RemoteAddr() net.Addr       { return c.conn.RemoteAddr() }

// Done is closed once the reactor has stopped.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel closed, or nil while it is open.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsUsable reports whether new circuits may be opened on the channel.
func (c *Channel) IsUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Channel) NumCircuits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.circs)
}

func (c *Channel) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// UnusedSince returns when the channel last became free of circuits. ok is
// false while circuits are open.
func (c *Channel) UnusedSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.circs) > 0 {
		return time.Time{}, false
	}
	return c.unusedSince, true
}

func (c *Channel) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

// Claim marks the channel as just handed out, restarting its idle clock. It
// reports false once the channel is closed.
func (c *Channel) Claim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if len(c.circs) == 0 {
		c.unusedSince = time.Now()
	}
	return true
}

// CloseIfIdle closes the channel when it has had no circuits for at least
// timeout. The check and the close happen under one lock, so a channel
// claimed or given a circuit in between is left alone.
func (c *Channel) CloseIfIdle(now time.Time, timeout time.Duration) bool {
	c.mu.Lock()
	if c.closed || len(c.circs) > 0 || now.Sub(c.unusedSince) < timeout {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.err = ErrChannelClosed
	c.mu.Unlock()
	c.shutdown(ErrChannelClosed)
	return true
}

// NewCirc reserves a fresh circuit ID on the channel.
func (c *Channel) NewCirc() (*PendingCircuit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.maxCircs > 0 && len(c.circs) >= c.maxCircs {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyCircuits, c.maxCircs)
	}
	var id vo.CircuitID
	for range 16 {
		cand, err := vo.NewCircuitID()
		if err != nil {
			return nil, err
		}
		if _, used := c.circs[cand]; !used {
			id = cand
			break
		}
	}
	if id.IsZero() {
		return nil, errors.New("no free circuit id")
	}
	slot := &circSlot{in: make(chan *Cell, circQueueLen), gone: make(chan struct{})}
	c.circs[id] = slot
	return &PendingCircuit{ch: c, id: id, slot: slot}, nil
}

// release drops the circuit from the routing table.
func (c *Channel) release(id vo.CircuitID, slot *circSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.circs[id]; ok && cur == slot {
		delete(c.circs, id)
		close(slot.gone)
		if len(c.circs) == 0 {
			c.unusedSince = time.Now()
		}
	}
}

// Send writes one cell. Writes are serialized so cells never interleave.
func (c *Channel) Send(cell *Cell) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.IsUsable() {
		return ErrChannelClosed
	}
	if err := WriteCell(c.conn, cell); err != nil {
		c.shutdown(fmt.Errorf("write: %w", err))
		return err
	}
	c.touch()
	return nil
}

// SendPadding writes a keepalive PADDING cell.
func (c *Channel) SendPadding() error {
	return c.Send(&Cell{Cmd: vo.CmdPadding})
}

// Close tears the channel down. All its circuits fail with ErrChannelClosed.
func (c *Channel) Close() error {
	c.shutdown(ErrChannelClosed)
	return nil
}

func (c *Channel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		c.mu.Unlock()
		c.conn.Close()
	})
}

func (c *Channel) reactor() {
	defer func() {
		c.mu.Lock()
		slots := c.circs
		c.circs = make(map[vo.CircuitID]*circSlot)
		c.unusedSince = time.Now()
		c.mu.Unlock()
		for _, s := range slots {
			close(s.in)
		}
		close(c.done)
	}()

	for {
		cell, err := ReadCell(c.conn)
		if err != nil {
			c.shutdown(fmt.Errorf("read: %w", err))
			c.log.Debug("channel reactor stopped", "err", err)
			return
		}
		c.touch()

		if cell.CircID.IsZero() {
			// Link-level cells after the handshake carry nothing we act on.
			if cell.Cmd != vo.CmdPadding {
				c.log.Debug("ignoring link cell", "cmd", cell.Cmd.String())
			}
			continue
		}

		c.mu.Lock()
		slot, ok := c.circs[cell.CircID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug("cell for unknown circuit", "circ", cell.CircID.String(), "cmd", cell.Cmd.String())
			continue
		}
		select {
		case slot.in <- cell:
		case <-slot.gone:
		}
	}
}
