package entity

import (
	"context"
	"io"
	"log/slog"
	"sync"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

type streamState int

const (
	streamPending streamState = iota
	streamOpen
	streamEnded // peer sent END
	streamClosed
)

// Stream is an application byte stream carried over one circuit.
type Stream struct {
	id     vo.StreamID
	circ   *Circuit
	target string
	log    *slog.Logger

	mu        sync.Mutex
	state     streamState
	queue     [][]byte // received DATA payloads, oldest first
	err       error
	endReason vo.EndReason

	connected chan struct{} // closed on CONNECTED, END or failure
	connOnce  sync.Once
	notify    chan struct{}
}

func newStream(c *Circuit, id vo.StreamID, target string) *Stream {
	return &Stream{
		id:        id,
		circ:      c,
		target:    target,
		log:       c.streamLogger(id),
		connected: make(chan struct{}),
		notify:    make(chan struct{}, 1),
	}
}

func (s *Stream) ID() vo.StreamID   { return s.id }
func (s *Stream) Target() string    { return s.target }
func (s *Stream) Circuit() *Circuit { return s.circ }

// Begin sends RELAY_BEGIN and waits for CONNECTED. A peer END yields an
// *EndError; expiry of ctx yields ctx.Err() and the stream is abandoned.
func (s *Stream) Begin(ctx context.Context, flags uint32) error {
	payload := append([]byte(s.target), 0)
	if flags != 0 {
		payload = append(payload, byte(flags>>24), byte(flags>>16), byte(flags>>8), byte(flags))
	}
	if err := s.circ.SendRelay(vo.RelayBegin, s.id, payload); err != nil {
		s.abandon()
		return err
	}

	select {
	case <-ctx.Done():
		s.sendEnd(vo.EndReasonTimeout)
		s.abandon()
		return ctx.Err()
	case <-s.connected:
	}

	s.mu.Lock()
	state, err, reason := s.state, s.err, s.endReason
	s.mu.Unlock()
	switch {
	case state == streamOpen:
		s.log.Debug("stream connected", "target", s.target)
		return nil
	case state == streamEnded:
		s.abandon()
		return &EndError{Reason: reason}
	default:
		s.abandon()
		return err
	}
}

func (s *Stream) signalConnected() { s.connOnce.Do(func() { close(s.connected) }) }

func (s *Stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// handle runs on the circuit reactor.
func (s *Stream) handle(rc *RelayCell) {
	s.mu.Lock()
	switch rc.Cmd {
	case vo.RelayConnected:
		if s.state == streamPending {
			s.state = streamOpen
		}
	case vo.RelayData:
		if s.state == streamOpen {
			s.queue = append(s.queue, rc.Data)
		} else {
			s.mu.Unlock()
			s.circ.cellConsumed()
			return
		}
	case vo.RelayEnd:
		if s.state == streamPending || s.state == streamOpen {
			s.state = streamEnded
			s.endReason = vo.EndReasonMisc
			if len(rc.Data) > 0 {
				s.endReason = vo.EndReason(rc.Data[0])
			}
		}
	}
	s.mu.Unlock()

	if rc.Cmd == vo.RelayEnd {
		s.circ.removeStream(s.id)
	}
	s.signalConnected()
	s.wake()
}

// fail is called when the circuit goes away under the stream.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.state != streamClosed && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signalConnected()
	s.wake()
}

// Read drains received data. It returns io.EOF after the peer ended the
// stream and every queued byte was read.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			head := s.queue[0]
			n := copy(p, head)
			drained := n == len(head)
			if drained {
				s.queue[0] = nil
				s.queue = s.queue[1:]
			} else {
				s.queue[0] = head[n:]
			}
			s.mu.Unlock()
			if drained {
				s.circ.cellConsumed()
			}
			return n, nil
		}
		state, err := s.state, s.err
		s.mu.Unlock()

		switch {
		case state == streamClosed:
			return 0, ErrStreamClosed
		case err != nil:
			return 0, err
		case state == streamEnded:
			return 0, io.EOF
		}
		<-s.notify
	}
}

// Write splits p into DATA cells, waiting on the circuit window as needed.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if err := s.writable(); err != nil {
			return written, err
		}
		chunk := p
		if len(chunk) > MaxRelayDataSize {
			chunk = chunk[:MaxRelayDataSize]
		}
		if err := s.circ.pkg.Take(context.Background()); err != nil {
			if cerr := s.circ.Err(); cerr != nil {
				return written, cerr
			}
			return written, err
		}
		if err := s.circ.SendRelay(vo.RelayData, s.id, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

func (s *Stream) writable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == streamClosed:
		return ErrStreamClosed
	case s.err != nil:
		return s.err
	case s.state == streamEnded:
		return io.ErrClosedPipe
	case s.state == streamPending:
		return io.ErrNoProgress
	}
	return nil
}

// Close sends END (DONE) unless the peer already ended the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.state == streamClosed {
		s.mu.Unlock()
		return nil
	}
	sendEnd := s.state == streamOpen && s.err == nil
	unread := len(s.queue)
	s.state = streamClosed
	s.queue = nil
	s.mu.Unlock()

	if sendEnd {
		s.sendEnd(vo.EndReasonDone)
	}
	for range unread {
		s.circ.cellConsumed()
	}
	s.circ.removeStream(s.id)
	s.signalConnected()
	s.wake()
	return nil
}

func (s *Stream) sendEnd(reason vo.EndReason) {
	if err := s.circ.SendRelay(vo.RelayEnd, s.id, []byte{byte(reason)}); err != nil {
		s.log.Debug("end failed", "err", err)
	}
}

func (s *Stream) abandon() {
	s.mu.Lock()
	s.state = streamClosed
	s.queue = nil
	s.mu.Unlock()
	s.circ.removeStream(s.id)
}
