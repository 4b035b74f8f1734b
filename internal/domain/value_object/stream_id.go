package value_object

import "fmt"

// StreamID identifies a stream within one circuit; 0 addresses the circuit itself.
type StreamID uint16

// StreamIDFrom は外部値から作成（0 は無効）。
func StreamIDFrom(v uint16) (StreamID, error) {
	if v == 0 {
		return 0, fmt.Errorf("streamID 0 is reserved")
	}
	return StreamID(v), nil
}

// Next returns the successor of s, skipping the reserved 0 on wrap-around.
func (s StreamID) Next() StreamID {
	n := s + 1
	if n == 0 {
		n = 1
	}
	return n
}

func (s StreamID) UInt16() uint16        { return uint16(s) }
func (s StreamID) Equal(o StreamID) bool { return s == o }
