// Package directory holds the in-process directory used when the relay to
// talk to is given explicitly. It never fetches anything from the network.
package directory

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	useSvc "ikedadada/go-onehop/internal/usecase/service"
)

// ErrNoInfo is returned by NetDir while no snapshot is present.
var ErrNoInfo = errors.New("no directory information")

// DefaultEventBuffer is the per-subscriber event queue length.
const DefaultEventBuffer = 128

// SingleRelayProvider implements service.NetDirProvider for a client that
// only ever talks to one explicitly named relay.
type SingleRelayProvider struct {
	log    *slog.Logger
	buffer int
	now    func() time.Time

	mu       sync.Mutex
	snapshot *entity.NetworkSnapshot
	subs     map[*subscription]struct{}
}

type subscription struct {
	p      *SingleRelayProvider
	mu     sync.Mutex
	c      chan vo.DirEvent
	closed bool
}

func (s *subscription) C() <-chan vo.DirEvent { return s.c }

func (s *subscription) Close() {
	s.p.mu.Lock()
	delete(s.p.subs, s)
	s.p.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}

// send never blocks; a full queue drops the event.
func (s *subscription) send(ev vo.DirEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.c <- ev:
		return true
	default:
		return false
	}
}

func NewSingleRelayProvider(buffer int, log *slog.Logger) *SingleRelayProvider {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &SingleRelayProvider{
		log:    log,
		buffer: buffer,
		now:    time.Now,
		subs:   make(map[*subscription]struct{}),
	}
}

var _ useSvc.NetDirProvider = (*SingleRelayProvider)(nil)

func (p *SingleRelayProvider) NetDir(t vo.Timeliness) (*entity.NetworkSnapshot, error) {
	p.mu.Lock()
	snap := p.snapshot
	p.mu.Unlock()
	if snap == nil || !snap.UsableAt(p.now(), t) {
		return nil, ErrNoInfo
	}
	return snap, nil
}

func (p *SingleRelayProvider) Events() useSvc.Subscription {
	s := &subscription{p: p, c: make(chan vo.DirEvent, p.buffer)}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	return s
}

func (p *SingleRelayProvider) Params() vo.NetParameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		return vo.DefaultNetParameters()
	}
	return p.snapshot.Params
}

// SetNetDir replaces the snapshot without telling subscribers.
func (p *SingleRelayProvider) SetNetDir(s *entity.NetworkSnapshot) {
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}

// SetNetDirAndNotify replaces the snapshot and broadcasts NewConsensus.
func (p *SingleRelayProvider) SetNetDirAndNotify(s *entity.NetworkSnapshot) {
	p.SetNetDir(s)
	p.Publish(vo.DirEventNewConsensus)
}

// Publish broadcasts ev to every subscriber without blocking.
func (p *SingleRelayProvider) Publish(ev vo.DirEvent) {
	p.mu.Lock()
	subs := make([]*subscription, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		if !s.send(ev) {
			p.log.Debug("directory event dropped", "event", ev.String())
		}
	}
}
