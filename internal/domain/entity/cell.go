package entity

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

const (
	// Cell size constants
	CellSize       = 514
	headerOverhead = 7 // CIRCID(4)+CMD(1)+LEN(2)
	MaxPayloadSize = CellSize - headerOverhead
)

// Cell is one fixed-size link cell.
// Format: [CIRCID(4)] [CMD(1)] [LEN(2)] [PAYLOAD(LEN)] [PADDING...]
type Cell struct {
	CircID  vo.CircuitID
	Cmd     vo.CellCommand
	Payload []byte
}

// NewCell creates a new Cell with the specified command and payload.
func NewCell(cid vo.CircuitID, cmd vo.CellCommand, payload []byte) (*Cell, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too big: %d > %d", len(payload), MaxPayloadSize)
	}
	if cmd.IsChannelLevel() != cid.IsZero() {
		return nil, fmt.Errorf("%s cell cannot use circuit id %s", cmd, cid)
	}
	return &Cell{CircID: cid, Cmd: cmd, Payload: payload}, nil
}

// Encode serializes the cell into a fixed CellSize slice with random padding.
func Encode(c Cell) ([]byte, error) {
	if len(c.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too big: %d > %d", len(c.Payload), MaxPayloadSize)
	}
	buf := make([]byte, CellSize)
	binary.BigEndian.PutUint32(buf[0:4], c.CircID.UInt32())
	buf[4] = byte(c.Cmd)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(c.Payload)))
	copy(buf[headerOverhead:], c.Payload)
	if _, err := rand.Read(buf[headerOverhead+len(c.Payload):]); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode parses a CellSize buffer into a Cell.
func Decode(buf []byte) (*Cell, error) {
	if len(buf) != CellSize {
		return nil, fmt.Errorf("invalid cell length: %d", len(buf))
	}
	cmd := vo.CellCommand(buf[4])
	if !cmd.IsValid() {
		return nil, fmt.Errorf("invalid cell command: %d", buf[4])
	}
	l := binary.BigEndian.Uint16(buf[5:7])
	if l > MaxPayloadSize {
		return nil, fmt.Errorf("invalid payload length: %d", l)
	}
	payload := make([]byte, l)
	copy(payload, buf[headerOverhead:headerOverhead+int(l)])
	return &Cell{
		CircID:  vo.CircuitID(binary.BigEndian.Uint32(buf[0:4])),
		Cmd:     cmd,
		Payload: payload,
	}, nil
}

// ReadCell reads exactly one cell from r.
func ReadCell(r io.Reader) (*Cell, error) {
	buf := make([]byte, CellSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return Decode(buf)
}

// WriteCell encodes c and writes it to w in one call.
func WriteCell(w io.Writer, c *Cell) error {
	buf, err := Encode(*c)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
