package entity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

func TestChannel_NewCircLimit(t *testing.T) {
	ch, _ := newChannelPair(t, 2)

	a, err := ch.NewCirc()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := ch.NewCirc()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatalf("duplicate circuit id %s", a.ID())
	}
	if a.ID().UInt32()&0x80000000 == 0 {
		t.Fatalf("client circuit id without high bit: %s", a.ID())
	}
	if _, err := ch.NewCirc(); !errors.Is(err, entity.ErrTooManyCircuits) {
		t.Fatalf("expected ErrTooManyCircuits, got %v", err)
	}

	a.Abort(vo.DestroyNone)
	if ch.NumCircuits() != 1 {
		t.Fatalf("NumCircuits = %d", ch.NumCircuits())
	}
	if _, err := ch.NewCirc(); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestChannel_RoutesCellsToPendingCircuit(t *testing.T) {
	ch, p := newChannelPair(t, 0)
	pc, err := ch.NewCirc()
	if err != nil {
		t.Fatal(err)
	}

	go p.send(&entity.Cell{CircID: pc.ID(), Cmd: vo.CmdCreatedFast, Payload: []byte("reply")})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := pc.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if got.Cmd != vo.CmdCreatedFast || string(got.Payload) != "reply" {
		t.Fatalf("unexpected cell %+v", got)
	}
}

func TestChannel_AwaitTimeout(t *testing.T) {
	ch, _ := newChannelPair(t, 0)
	pc, _ := ch.NewCirc()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := pc.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestChannel_PeerHangupFailsCircuits(t *testing.T) {
	ch, p := newChannelPair(t, 0)
	pc, _ := ch.NewCirc()

	p.conn.Close()

	if _, err := pc.Await(context.Background()); !errors.Is(err, entity.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatalf("reactor did not stop")
	}
	if ch.IsUsable() {
		t.Fatalf("channel still usable")
	}
	if ch.Err() == nil {
		t.Fatalf("expected close cause")
	}
	if _, err := ch.NewCirc(); !errors.Is(err, entity.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestChannel_PaddingAndUnusedSince(t *testing.T) {
	ch, p := newChannelPair(t, 0)
	before := ch.LastActivity()

	time.Sleep(5 * time.Millisecond)
	if err := ch.SendPadding(); err != nil {
		t.Fatalf("padding: %v", err)
	}
	if c := p.next(); c.Cmd != vo.CmdPadding || !c.CircID.IsZero() {
		t.Fatalf("peer got %s on %s", c.Cmd, c.CircID)
	}
	if !ch.LastActivity().After(before) {
		t.Fatalf("last activity not updated")
	}

	if _, ok := ch.UnusedSince(); !ok {
		t.Fatalf("fresh channel should be unused")
	}
	pc, _ := ch.NewCirc()
	if _, ok := ch.UnusedSince(); ok {
		t.Fatalf("channel with a circuit reported unused")
	}
	pc.Abort(vo.DestroyRequested)
	if c := p.next(); c.Cmd != vo.CmdDestroy || c.CircID != pc.ID() {
		t.Fatalf("abort did not send DESTROY: %s", c.Cmd)
	}
	if _, ok := ch.UnusedSince(); !ok {
		t.Fatalf("channel should be unused after abort")
	}
}

func TestChannel_ClaimAndCloseIfIdle(t *testing.T) {
	ch, _ := newChannelPair(t, 0)
	const idle = 50 * time.Millisecond

	if ch.CloseIfIdle(time.Now(), idle) {
		t.Fatalf("fresh channel closed as idle")
	}
	time.Sleep(idle)
	if !ch.Claim() {
		t.Fatalf("claim on open channel failed")
	}
	if ch.CloseIfIdle(time.Now(), idle) {
		t.Fatalf("claimed channel closed as idle")
	}

	pc, err := ch.NewCirc()
	if err != nil {
		t.Fatal(err)
	}
	if ch.CloseIfIdle(time.Now().Add(time.Hour), idle) {
		t.Fatalf("channel with a circuit closed as idle")
	}
	pc.Abort(vo.DestroyNone)

	if !ch.CloseIfIdle(time.Now().Add(time.Hour), idle) {
		t.Fatalf("idle channel not closed")
	}
	if ch.IsUsable() || ch.Claim() {
		t.Fatalf("closed channel still usable")
	}
}
