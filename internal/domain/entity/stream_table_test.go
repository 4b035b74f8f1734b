package entity_test

import (
	"errors"
	"net"
	"testing"

	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

func TestStreamTable_AddGetRemove(t *testing.T) {
	tbl := entity.NewStreamTable()
	id := vo.StreamID(1)
	c1, c2 := net.Pipe()
	defer c2.Close()

	if err := tbl.Add(id, c1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tbl.Add(id, c2); !errors.Is(err, entity.ErrStreamExists) {
		t.Fatalf("expect ErrStreamExists, got %v", err)
	}
	got, err := tbl.Get(id)
	if err != nil || got != c1 {
		t.Fatalf("get: %v", err)
	}
	if err := tbl.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tbl.Remove(id); !errors.Is(err, entity.ErrUnknownStream) {
		t.Fatalf("second remove should fail, got %v", err)
	}
	if _, err := tbl.Get(id); !errors.Is(err, entity.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream")
	}
	if _, err := c1.Write([]byte{1}); err == nil {
		t.Fatalf("removed conn should be closed")
	}
}

func TestStreamTable_ReserveAttach(t *testing.T) {
	tbl := entity.NewStreamTable()
	id := vo.StreamID(7)
	if err := tbl.Reserve(id); err != nil {
		t.Fatal(err)
	}
	if c, err := tbl.Get(id); err != nil || c != nil {
		t.Fatalf("reserved id: conn=%v err=%v", c, err)
	}

	c1, c2 := net.Pipe()
	defer c2.Close()
	if err := tbl.Attach(id, c1); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := tbl.Attach(id, c1); !errors.Is(err, entity.ErrUnknownStream) {
		t.Fatalf("attach twice should fail, got %v", err)
	}

	_ = tbl.Remove(id)
	c3, c4 := net.Pipe()
	defer c3.Close()
	defer c4.Close()
	if err := tbl.Attach(id, c3); !errors.Is(err, entity.ErrUnknownStream) {
		t.Fatalf("attach after remove should fail, got %v", err)
	}
}

func TestStreamTable_DestroyAll(t *testing.T) {
	tbl := entity.NewStreamTable()
	c1, _ := net.Pipe()
	c2, _ := net.Pipe()

	_ = tbl.Add(1, c1)
	_ = tbl.Add(2, c2)
	tbl.DestroyAll()

	if tbl.Len() != 0 {
		t.Fatalf("table not cleared")
	}
	for _, c := range []net.Conn{c1, c2} {
		if _, err := c.Write([]byte{1}); err == nil {
			t.Fatalf("conn not closed")
		}
	}
}
