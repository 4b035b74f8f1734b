package entity

import (
	"context"
	"fmt"
	"sync"
)

// PackageWindow counts the cells we may still send before the peer has to
// acknowledge with a SENDME.
type PackageWindow struct {
	mu     sync.Mutex
	n      int
	max    int
	inc    int
	closed bool
	wake   chan struct{}
}

func NewPackageWindow(initial, max, inc int) *PackageWindow {
	return &PackageWindow{n: initial, max: max, inc: inc, wake: make(chan struct{})}
}

// Take consumes one cell of window, blocking until one is available.
func (w *PackageWindow) Take(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return ErrWindowClosed
		}
		if w.n > 0 {
			w.n--
			w.mu.Unlock()
			return nil
		}
		wake := w.wake
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Add credits one SENDME worth of cells. A credit that would push the window
// past its maximum is a protocol violation.
func (w *PackageWindow) Add() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n+w.inc > w.max {
		return fmt.Errorf("%w: unexpected sendme (window %d, max %d)", ErrProtocolViolation, w.n, w.max)
	}
	w.n += w.inc
	close(w.wake)
	w.wake = make(chan struct{})
	return nil
}

// Close fails all current and future Take calls.
func (w *PackageWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.wake)
}

func (w *PackageWindow) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// DeliverWindow counts the cells the peer may still send us. Received cells
// shrink it; every inc cells handed to the application earn the peer a SENDME.
type DeliverWindow struct {
	mu       sync.Mutex
	n        int
	inc      int
	consumed int
}

func NewDeliverWindow(initial, inc int) *DeliverWindow {
	return &DeliverWindow{n: initial, inc: inc}
}

// Receive accounts for one inbound cell.
func (w *DeliverWindow) Receive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n <= 0 {
		return fmt.Errorf("%w: deliver window exhausted", ErrProtocolViolation)
	}
	w.n--
	return nil
}

// Consume accounts for one cell read by the application and reports whether
// a SENDME is now due.
func (w *DeliverWindow) Consume() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consumed++
	if w.consumed < w.inc {
		return false
	}
	w.consumed = 0
	w.n += w.inc
	return true
}

func (w *DeliverWindow) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
