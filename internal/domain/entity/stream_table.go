package entity

import (
	"errors"
	"net"
	"sync"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

var (
	ErrStreamExists  = errors.New("stream id already exists")
	ErrUnknownStream = errors.New("stream id not found")
)

// StreamTable maps the stream IDs of one relay circuit to exit connections.
type StreamTable struct {
	mu sync.RWMutex
	m  map[vo.StreamID]net.Conn
}

func NewStreamTable() *StreamTable {
	return &StreamTable{m: make(map[vo.StreamID]net.Conn)}
}

// Reserve claims id before the exit connection exists.
func (t *StreamTable) Reserve(id vo.StreamID) error {
	return t.Add(id, nil)
}

func (t *StreamTable) Add(id vo.StreamID, c net.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; ok {
		return ErrStreamExists
	}
	t.m[id] = c
	return nil
}

// Attach sets the connection of a reserved id. It fails if the id was
// removed meanwhile; the caller then owns c.
func (t *StreamTable) Attach(id vo.StreamID, c net.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.m[id]; !ok || cur != nil {
		return ErrUnknownStream
	}
	t.m[id] = c
	return nil
}

// Get returns the connection of id. A reserved id yields a nil conn.
func (t *StreamTable) Get(id vo.StreamID) (net.Conn, error) {
	t.mu.RLock()
	c, ok := t.m[id]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownStream
	}
	return c, nil
}

// Remove forgets id and closes its connection. Only the first Remove of an
// id succeeds.
func (t *StreamTable) Remove(id vo.StreamID) error {
	t.mu.Lock()
	c, ok := t.m[id]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownStream
	}
	delete(t.m, id)
	t.mu.Unlock()
	if c != nil {
		c.Close()
	}
	return nil
}

func (t *StreamTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

func (t *StreamTable) DestroyAll() {
	t.mu.Lock()
	for id, c := range t.m {
		if c != nil {
			c.Close()
		}
		delete(t.m, id)
	}
	t.mu.Unlock()
}
