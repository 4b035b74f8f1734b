package entity

import (
	"errors"
	"slices"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// ChannelTarget is the relay a channel should reach: its identity and the
// addresses to try, in order.
type ChannelTarget struct {
	identity vo.RelayIdentity
	addrs    []vo.Endpoint
}

func NewChannelTarget(id vo.RelayIdentity, addrs []vo.Endpoint) (ChannelTarget, error) {
	if id.IsZero() {
		return ChannelTarget{}, errors.New("channel target: empty relay identity")
	}
	if len(addrs) == 0 {
		return ChannelTarget{}, errors.New("channel target: no addresses")
	}
	for _, a := range addrs {
		if !a.IsValid() {
			return ChannelTarget{}, errors.New("channel target: invalid address")
		}
	}
	return ChannelTarget{identity: id, addrs: slices.Clone(addrs)}, nil
}

func (t ChannelTarget) Identity() vo.RelayIdentity { return t.identity }
func (t ChannelTarget) Addrs() []vo.Endpoint       { return slices.Clone(t.addrs) }

func (t ChannelTarget) String() string {
	if len(t.addrs) == 0 {
		return "$" + t.identity.String()
	}
	return "$" + t.identity.String() + "@" + t.addrs[0].String()
}
