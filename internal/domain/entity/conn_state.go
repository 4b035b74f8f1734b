package entity

import (
	"sync"
	"sync/atomic"
	"time"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// CellWriter writes whole cells onto a link. Implementations serialise
// concurrent callers.
type CellWriter interface {
	WriteCell(*Cell) error
}

// ConnState is the relay's view of one circuit: its crypto, its exit
// streams and both flow control windows.
type ConnState struct {
	id      vo.CircuitID
	up      CellWriter
	crypto  CellCrypto
	tbl     *StreamTable
	pkg     *PackageWindow
	deliver *DeliverWindow

	sendMu    sync.Mutex
	last      atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnState returns the state of a circuit that finished CREATE_FAST.
func NewConnState(id vo.CircuitID, up CellWriter, crypto CellCrypto) *ConnState {
	s := &ConnState{
		id:      id,
		up:      up,
		crypto:  crypto,
		tbl:     NewStreamTable(),
		pkg:     NewPackageWindow(vo.DefaultCircWindow, vo.DefaultCircWindow, vo.CircWindowIncrement),
		deliver: NewDeliverWindow(vo.DefaultCircWindow, vo.CircWindowIncrement),
		done:    make(chan struct{}),
	}
	s.Touch()
	return s
}

func (s *ConnState) ID() vo.CircuitID { return s.id }

// Streams returns the table of open exit connections.
func (s *ConnState) Streams() *StreamTable { return s.tbl }

// Package is the window for cells sent towards the client.
func (s *ConnState) Package() *PackageWindow { return s.pkg }

// Deliver is the window for cells received from the client.
func (s *ConnState) Deliver() *DeliverWindow { return s.deliver }

// Done is closed once the circuit is torn down.
func (s *ConnState) Done() <-chan struct{} { return s.done }

// Touch updates the last-used time to now.
func (s *ConnState) Touch() { s.last.Store(time.Now().UnixNano()) }

// LastUsed reports the last time a cell moved on the circuit.
func (s *ConnState) LastUsed() time.Time { return time.Unix(0, s.last.Load()) }

// Decrypt removes the forward layer from a RELAY body in place.
func (s *ConnState) Decrypt(body []byte) (*RelayCell, error) {
	if err := s.crypto.Decrypt(body); err != nil {
		return nil, err
	}
	s.Touch()
	return DecodeRelayBody(body)
}

// SendRelay encrypts and writes one relay cell towards the client.
func (s *ConnState) SendRelay(cmd vo.RelayCommand, sid vo.StreamID, data []byte) error {
	rc, err := NewRelayCell(cmd, sid, data)
	if err != nil {
		return err
	}
	body, err := rc.EncodeBody()
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.done:
		return ErrCircuitClosed
	default:
	}
	s.crypto.Encrypt(body)
	s.Touch()
	return s.up.WriteCell(&Cell{CircID: s.id, Cmd: vo.CmdRelay, Payload: body})
}

// Destroy tells the client the circuit is gone and closes it.
func (s *ConnState) Destroy(reason vo.DestroyReason) {
	s.sendMu.Lock()
	select {
	case <-s.done:
	default:
		_ = s.up.WriteCell(&Cell{CircID: s.id, Cmd: vo.CmdDestroy, Payload: []byte{byte(reason)}})
	}
	s.sendMu.Unlock()
	s.Close()
}

// Close drops every exit connection and stops pending senders.
func (s *ConnState) Close() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		close(s.done)
		s.sendMu.Unlock()
		s.pkg.Close()
		s.tbl.DestroyAll()
	})
}
