package entity

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// Relay cell body layout, carried as the full payload of a RELAY cell:
// [CMD(1)] [RECOGNIZED(2)] [STREAMID(2)] [DIGEST(4)] [LEN(2)] [DATA(LEN)] [PADDING...]
const (
	RelayBodySize       = MaxPayloadSize
	RelayHeaderSize     = 11
	RelayRecognizedOff  = 1
	RelayDigestOff      = 5
	MaxRelayDataSize    = RelayBodySize - RelayHeaderSize
	relayStreamIDOffset = 3
	relayLenOffset      = 9
)

// RelayCell is the decrypted body of a RELAY cell.
type RelayCell struct {
	Cmd      vo.RelayCommand
	StreamID vo.StreamID
	Data     []byte
}

// NewRelayCell checks the data size limit.
func NewRelayCell(cmd vo.RelayCommand, sid vo.StreamID, data []byte) (*RelayCell, error) {
	if len(data) > MaxRelayDataSize {
		return nil, fmt.Errorf("relay data too big: %d > %d", len(data), MaxRelayDataSize)
	}
	return &RelayCell{Cmd: cmd, StreamID: sid, Data: data}, nil
}

// EncodeBody lays the relay cell out in a RelayBodySize buffer with the
// recognized and digest fields zeroed, ready for the crypto layer.
func (r *RelayCell) EncodeBody() ([]byte, error) {
	if len(r.Data) > MaxRelayDataSize {
		return nil, fmt.Errorf("relay data too big: %d > %d", len(r.Data), MaxRelayDataSize)
	}
	buf := make([]byte, RelayBodySize)
	buf[0] = byte(r.Cmd)
	binary.BigEndian.PutUint16(buf[relayStreamIDOffset:], r.StreamID.UInt16())
	binary.BigEndian.PutUint16(buf[relayLenOffset:], uint16(len(r.Data)))
	copy(buf[RelayHeaderSize:], r.Data)
	if _, err := rand.Read(buf[RelayHeaderSize+len(r.Data):]); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeRelayBody parses a decrypted, digest-verified relay body.
func DecodeRelayBody(buf []byte) (*RelayCell, error) {
	if len(buf) != RelayBodySize {
		return nil, fmt.Errorf("invalid relay body length: %d", len(buf))
	}
	l := binary.BigEndian.Uint16(buf[relayLenOffset:])
	if int(l) > MaxRelayDataSize {
		return nil, fmt.Errorf("invalid relay data length: %d", l)
	}
	data := make([]byte, l)
	copy(data, buf[RelayHeaderSize:RelayHeaderSize+int(l)])
	return &RelayCell{
		Cmd:      vo.RelayCommand(buf[0]),
		StreamID: vo.StreamID(binary.BigEndian.Uint16(buf[relayStreamIDOffset:])),
		Data:     data,
	}, nil
}

// CellCrypto is the per-hop encryption state of an established circuit.
// Implementations are not safe for concurrent use; callers serialize.
type CellCrypto interface {
	// Encrypt stamps the running digest into body and encrypts it in place.
	Encrypt(body []byte)
	// Decrypt decrypts body in place and verifies its digest.
	Decrypt(body []byte) error
}
