package repository

import (
	"sync"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	repoif "ikedadada/go-onehop/internal/domain/repository"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

type circuitTableRepository struct {
	mu      sync.RWMutex
	ttl     time.Duration
	m       map[vo.CircuitID]*entity.ConnState
	onEvict func(*entity.ConnState)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCircuitTableRepository creates an in-memory circuit table. Circuits
// idle for longer than ttl are destroyed; onEvict, if set, sees every
// circuit that leaves the table.
func NewCircuitTableRepository(ttl time.Duration, onEvict func(*entity.ConnState)) repoif.CircuitTableRepository {
	r := &circuitTableRepository{
		ttl:     ttl,
		m:       make(map[vo.CircuitID]*entity.ConnState),
		onEvict: onEvict,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go r.gc()
	}
	return r
}

func (r *circuitTableRepository) Add(id vo.CircuitID, st *entity.ConnState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; ok {
		return repoif.ErrDuplicate
	}
	st.Touch()
	r.m[id] = st
	return nil
}

func (r *circuitTableRepository) Find(id vo.CircuitID) (*entity.ConnState, error) {
	r.mu.RLock()
	st, ok := r.m[id]
	r.mu.RUnlock()
	if !ok {
		return nil, repoif.ErrNotFound
	}
	return st, nil
}

func (r *circuitTableRepository) Delete(id vo.CircuitID) error {
	r.mu.Lock()
	st, ok := r.m[id]
	delete(r.m, id)
	r.mu.Unlock()
	if !ok {
		return repoif.ErrNotFound
	}
	st.Close()
	r.evicted(st)
	return nil
}

func (r *circuitTableRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *circuitTableRepository) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	states := make([]*entity.ConnState, 0, len(r.m))
	for id, st := range r.m {
		states = append(states, st)
		delete(r.m, id)
	}
	r.mu.Unlock()
	for _, st := range states {
		st.Close()
		r.evicted(st)
	}
}

func (r *circuitTableRepository) evicted(st *entity.ConnState) {
	if r.onEvict != nil {
		r.onEvict(st)
	}
}

func (r *circuitTableRepository) gc() {
	interval := r.ttl / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		var expired []*entity.ConnState
		r.mu.Lock()
		for id, st := range r.m {
			if time.Since(st.LastUsed()) > r.ttl {
				expired = append(expired, st)
				delete(r.m, id)
			}
		}
		r.mu.Unlock()
		for _, st := range expired {
			st.Destroy(vo.DestroyFinished)
			r.evicted(st)
		}
	}
}
