package value_object

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// CircuitID identifies a circuit on one channel. Zero is reserved for
// channel-level cells; IDs chosen by the initiator have the high bit set.
type CircuitID uint32

const circIDInitiatorBit = 0x8000_0000

// NewCircuitID returns a random initiator circuit ID.
func NewCircuitID() (CircuitID, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return CircuitID(binary.BigEndian.Uint32(b[:]) | circIDInitiatorBit), nil
}

// CircuitIDFrom validates a wire value (0 is invalid).
func CircuitIDFrom(v uint32) (CircuitID, error) {
	if v == 0 {
		return 0, fmt.Errorf("circuit id 0 is reserved")
	}
	return CircuitID(v), nil
}

func (c CircuitID) UInt32() uint32         { return uint32(c) }
func (c CircuitID) IsZero() bool           { return c == 0 }
func (c CircuitID) Equal(o CircuitID) bool { return c == o }
func (c CircuitID) String() string         { return fmt.Sprintf("%08x", uint32(c)) }
