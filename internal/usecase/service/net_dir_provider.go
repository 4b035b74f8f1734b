package service

import (
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// Subscription delivers directory events until closed.
type Subscription interface {
	C() <-chan vo.DirEvent
	Close()
}

// NetDirProvider is the source of network directory information.
type NetDirProvider interface {
	// NetDir returns the current snapshot if one satisfies t.
	NetDir(t vo.Timeliness) (*entity.NetworkSnapshot, error)
	// Events subscribes to directory changes.
	Events() Subscription
	// Params returns the current network parameters, or the defaults.
	Params() vo.NetParameters
}
