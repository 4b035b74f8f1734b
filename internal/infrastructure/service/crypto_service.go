package service

import (
	"errors"
	"fmt"

	"ikedadada/go-onehop/internal/domain/entity"
	"ikedadada/go-onehop/internal/infrastructure/crypto"
	useSvc "ikedadada/go-onehop/internal/usecase/service"
)

// CryptoServiceImpl implements service.CryptoService with CREATE_FAST and
// AES-CTR relay crypto.
type CryptoServiceImpl struct{}

// NewCryptoService returns a CryptoService backed by the crypto package.
func NewCryptoService() useSvc.CryptoService { return CryptoServiceImpl{} }

func (CryptoServiceImpl) FastHandshakeStart() ([]byte, error) {
	return crypto.NewFastKey()
}

func (CryptoServiceImpl) FastHandshakeFinish(x, reply []byte) (entity.CellCrypto, error) {
	if len(reply) < 2*crypto.FastKeyLen {
		return nil, fmt.Errorf("created_fast: short reply (%d bytes)", len(reply))
	}
	y, kh := reply[:crypto.FastKeyLen], reply[crypto.FastKeyLen:2*crypto.FastKeyLen]
	km, err := crypto.DeriveFastKeys(x, y)
	if err != nil {
		return nil, err
	}
	defer km.Wipe()
	if err := crypto.VerifyKeyHash(km, kh); err != nil {
		return nil, err
	}
	return crypto.NewClientRelayCrypto(km)
}

func (CryptoServiceImpl) FastHandshakeRespond(x []byte) ([]byte, entity.CellCrypto, error) {
	if len(x) < crypto.FastKeyLen {
		return nil, nil, errors.New("create_fast: short payload")
	}
	y, err := crypto.NewFastKey()
	if err != nil {
		return nil, nil, err
	}
	km, err := crypto.DeriveFastKeys(x[:crypto.FastKeyLen], y)
	if err != nil {
		return nil, nil, err
	}
	defer km.Wipe()
	rc, err := crypto.NewRelayRelayCrypto(km)
	if err != nil {
		return nil, nil, err
	}
	reply := append(y, km.KH[:]...)
	return reply, rc, nil
}
