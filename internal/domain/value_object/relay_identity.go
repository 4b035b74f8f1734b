package value_object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"ikedadada/go-onehop/internal/domain/apperror"
)

// RelayIdentityLen is the size of a relay's RSA identity digest.
const RelayIdentityLen = 20

// RelayIdentity is the 20-byte identity fingerprint of a relay.
type RelayIdentity [RelayIdentityLen]byte

// ParseFingerprint decodes a hex fingerprint. Whitespace anywhere in s is
// ignored, so "AAAA BBBB ..." and "AAAABBBB..." are equivalent.
func ParseFingerprint(s string) (RelayIdentity, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return RelayIdentity{}, apperror.New(apperror.InvalidFingerprint, "parse fingerprint", s, err)
	}
	return RelayIdentityFromBytes(b)
}

// RelayIdentityFromBytes copies b into a RelayIdentity.
func RelayIdentityFromBytes(b []byte) (RelayIdentity, error) {
	var id RelayIdentity
	if len(b) != RelayIdentityLen {
		return id, apperror.New(apperror.InvalidFingerprint, "parse fingerprint", "",
			fmt.Errorf("fingerprint must be %d bytes (%d hex characters), got %d bytes",
				RelayIdentityLen, RelayIdentityLen*2, len(b)))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the upper-case hex form used by Tor fingerprints.
func (r RelayIdentity) String() string { return strings.ToUpper(hex.EncodeToString(r[:])) }

func (r RelayIdentity) Bytes() []byte { return bytes.Clone(r[:]) }

func (r RelayIdentity) Equal(o RelayIdentity) bool { return r == o }

func (r RelayIdentity) IsZero() bool { return r == RelayIdentity{} }
