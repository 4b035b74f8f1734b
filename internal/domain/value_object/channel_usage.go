package value_object

// ChannelUsage classifies the traffic a channel is requested for.
type ChannelUsage int

const (
	UsageUserTraffic ChannelUsage = iota
	UsageDir
	UsageUselessCircuit
)

func (u ChannelUsage) String() string {
	switch u {
	case UsageUserTraffic:
		return "user-traffic"
	case UsageDir:
		return "dir"
	case UsageUselessCircuit:
		return "useless-circuit"
	default:
		return "unknown"
	}
}

// Provenance tells whether GetOrCreate launched the channel or found it.
type Provenance int

const (
	NewlyCreated Provenance = iota
	Reused
)

func (p Provenance) String() string {
	if p == NewlyCreated {
		return "newly-created"
	}
	return "reused"
}
