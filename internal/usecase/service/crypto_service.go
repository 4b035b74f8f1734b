package service

import (
	"ikedadada/go-onehop/internal/domain/entity"
)

// CryptoService runs the CREATE_FAST key agreement for both ends of a circuit.
type CryptoService interface {
	// FastHandshakeStart returns the client's secret X, sent as the
	// CREATE_FAST payload.
	FastHandshakeStart() ([]byte, error)
	// FastHandshakeFinish checks the CREATED_FAST reply (Y|KH) and returns
	// the client side circuit crypto.
	FastHandshakeFinish(x, reply []byte) (entity.CellCrypto, error)
	// FastHandshakeRespond is the relay side: it answers X with Y|KH.
	FastHandshakeRespond(x []byte) (reply []byte, crypto entity.CellCrypto, err error)
}
