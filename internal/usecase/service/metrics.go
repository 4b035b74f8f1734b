package service

import (
	"time"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// Metrics receives connector events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveChannel(vo.Provenance)
	ObserveChannelDropped()
	ObserveCircuit()
	ObserveStream()
	ObserveConnect(start time.Time, err error)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveChannel(vo.Provenance)    {}
func (NopMetrics) ObserveChannelDropped()          {}
func (NopMetrics) ObserveCircuit()                 {}
func (NopMetrics) ObserveStream()                  {}
func (NopMetrics) ObserveConnect(time.Time, error) {}

// RelayMetrics receives relay events.
type RelayMetrics interface {
	// ObserveRelayed counts n bytes moved; direction is "exit" or "client".
	ObserveRelayed(direction string, n int)
	RelayCircuitOpened()
	RelayCircuitClosed()
}

func (NopMetrics) ObserveRelayed(string, int) {}
func (NopMetrics) RelayCircuitOpened()        {}
func (NopMetrics) RelayCircuitClosed()        {}
