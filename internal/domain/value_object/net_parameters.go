package value_object

import "time"

// NetParameters are the network-wide tunables a channel manager consults.
type NetParameters struct {
	// KeepalivePeriod is how long a channel may stay silent before a
	// PADDING cell is sent on it.
	KeepalivePeriod time.Duration
	// ChannelIdleTimeout closes channels that carried no circuit for this long.
	ChannelIdleTimeout time.Duration
	CircWindowMin      uint16
	CircWindowMax      uint16
}

// DefaultNetParameters are used whenever no network snapshot is present.
func DefaultNetParameters() NetParameters {
	return NetParameters{
		KeepalivePeriod:    5 * time.Minute,
		ChannelIdleTimeout: 3 * time.Minute,
		CircWindowMin:      100,
		CircWindowMax:      1000,
	}
}

// Timeliness tells a directory provider how fresh a snapshot must be.
type Timeliness int

const (
	// Strict wants a snapshot that is still fresh.
	Strict Timeliness = iota
	// Timely accepts a snapshot that is still within its valid-until time.
	Timely
	// Unchecked accepts any snapshot.
	Unchecked
)

// DirEvent notifies subscribers of a directory change.
type DirEvent int

const (
	DirEventNewConsensus DirEvent = iota
	DirEventNewDescriptors
	DirEventNewParams
)

func (e DirEvent) String() string {
	switch e {
	case DirEventNewConsensus:
		return "new-consensus"
	case DirEventNewDescriptors:
		return "new-descriptors"
	case DirEventNewParams:
		return "new-params"
	default:
		return "unknown"
	}
}
