package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// FastKeyLen is the size of X and Y in a CREATE_FAST exchange.
	FastKeyLen = 20
	digestLen  = 20
	cipherLen  = 16

	kdfInfo = "onehop-create-fast"
)

// ErrKeyHashMismatch means the relay's KH did not match our derivation.
var ErrKeyHashMismatch = errors.New("create_fast: key hash mismatch")

// KeyMaterial is the expanded output of a CREATE_FAST exchange.
type KeyMaterial struct {
	KH [digestLen]byte
	Df [digestLen]byte
	Db [digestLen]byte
	Kf [cipherLen]byte
	Kb [cipherLen]byte
}

// Wipe zeroes every key.
func (k *KeyMaterial) Wipe() { *k = KeyMaterial{} }

// NewFastKey returns a random X (client) or Y (relay) value.
func NewFastKey() ([]byte, error) {
	b := make([]byte, FastKeyLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeriveFastKeys expands X|Y with HKDF-SHA256.
func DeriveFastKeys(x, y []byte) (*KeyMaterial, error) {
	if len(x) != FastKeyLen || len(y) != FastKeyLen {
		return nil, fmt.Errorf("create_fast: key length %d/%d", len(x), len(y))
	}
	secret := make([]byte, 0, 2*FastKeyLen)
	secret = append(append(secret, x...), y...)
	hk := hkdf.New(sha256.New, secret, nil, []byte(kdfInfo))

	var km KeyMaterial
	for _, dst := range [][]byte{km.KH[:], km.Df[:], km.Db[:], km.Kf[:], km.Kb[:]} {
		if _, err := io.ReadFull(hk, dst); err != nil {
			return nil, err
		}
	}
	return &km, nil
}

// VerifyKeyHash checks the relay's KH against ours in constant time.
func VerifyKeyHash(km *KeyMaterial, kh []byte) error {
	if !hmac.Equal(km.KH[:], kh) {
		return ErrKeyHashMismatch
	}
	return nil
}

// relayLayer is one direction of relay crypto: AES-128-CTR keystream plus a
// running SHA-1 digest seeded with the direction's digest key.
type relayLayer struct {
	stream cipher.Stream
	digest hash.Hash
}

func newRelayLayer(key [cipherLen]byte, seed [digestLen]byte) (*relayLayer, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	d := sha1.New()
	d.Write(seed[:])
	return &relayLayer{stream: cipher.NewCTR(block, iv), digest: d}, nil
}

// Relay body offsets, mirrored from the relay cell layout.
const (
	recognizedOff = 1
	digestOff     = 5
	digestFldLen  = 4
)

// RelayCrypto encrypts outbound and decrypts inbound relay bodies for one
// end of a circuit. It is not safe for concurrent use.
type RelayCrypto struct {
	out *relayLayer
	in  *relayLayer
}

// NewClientRelayCrypto sends with the forward keys and receives with the
// backward keys.
func NewClientRelayCrypto(km *KeyMaterial) (*RelayCrypto, error) {
	return newRelayCrypto(km.Kf, km.Df, km.Kb, km.Db)
}

// NewRelayRelayCrypto is the relay's mirror of NewClientRelayCrypto.
func NewRelayRelayCrypto(km *KeyMaterial) (*RelayCrypto, error) {
	return newRelayCrypto(km.Kb, km.Db, km.Kf, km.Df)
}

func newRelayCrypto(outK [cipherLen]byte, outD [digestLen]byte, inK [cipherLen]byte, inD [digestLen]byte) (*RelayCrypto, error) {
	out, err := newRelayLayer(outK, outD)
	if err != nil {
		return nil, err
	}
	in, err := newRelayLayer(inK, inD)
	if err != nil {
		return nil, err
	}
	return &RelayCrypto{out: out, in: in}, nil
}

// Encrypt stamps the running digest into body and encrypts it in place.
// body must have recognized and digest zeroed.
func (c *RelayCrypto) Encrypt(body []byte) {
	clear(body[digestOff : digestOff+digestFldLen])
	c.out.digest.Write(body)
	sum := c.out.digest.Sum(nil)
	copy(body[digestOff:digestOff+digestFldLen], sum[:digestFldLen])
	c.out.stream.XORKeyStream(body, body)
}

// Decrypt decrypts body in place and verifies recognized and the digest.
func (c *RelayCrypto) Decrypt(body []byte) error {
	c.in.stream.XORKeyStream(body, body)
	if body[recognizedOff] != 0 || body[recognizedOff+1] != 0 {
		return errors.New("relay cell not recognized")
	}
	var got [digestFldLen]byte
	copy(got[:], body[digestOff:digestOff+digestFldLen])
	clear(body[digestOff : digestOff+digestFldLen])
	c.in.digest.Write(body)
	sum := c.in.digest.Sum(nil)
	if !hmac.Equal(got[:], sum[:digestFldLen]) {
		return errors.New("relay cell digest mismatch")
	}
	return nil
}
