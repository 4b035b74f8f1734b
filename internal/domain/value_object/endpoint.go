package value_object

import (
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"ikedadada/go-onehop/internal/domain/apperror"
)

// Endpoint is a relay socket address (IP literal and port).
type Endpoint struct {
	addr netip.AddrPort
}

// ResolveAddress builds an Endpoint from an IP literal and port. IPv6
// literals may be given with or without brackets.
func ResolveAddress(ip string, port uint16) (Endpoint, error) {
	target := net.JoinHostPort(strings.Trim(ip, "[]"), strconv.Itoa(int(port)))
	a, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]"))
	if err != nil {
		return Endpoint{}, apperror.New(apperror.InvalidAddress, "resolve address", target, err)
	}
	if port == 0 {
		return Endpoint{}, apperror.New(apperror.InvalidAddress, "resolve address", target, errors.New("port 0 is not dialable"))
	}
	return Endpoint{addr: netip.AddrPortFrom(a.Unmap(), port)}, nil
}

// EndpointFromAddrPort wraps an already parsed address.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint { return Endpoint{addr: ap} }

func (e Endpoint) AddrPort() netip.AddrPort { return e.addr }
func (e Endpoint) String() string           { return e.addr.String() }
func (e Endpoint) IsValid() bool            { return e.addr.IsValid() }
