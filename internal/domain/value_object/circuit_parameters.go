package value_object

import (
	"errors"
	"fmt"

	"ikedadada/go-onehop/internal/domain/apperror"
)

// Percentage is a value in [0,100].
type Percentage uint8

func (p Percentage) Valid() bool { return p <= 100 }

// Algorithm selects the circuit congestion-control algorithm.
type Algorithm int

const (
	AlgorithmFixedWindow Algorithm = iota
	AlgorithmVegas
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmFixedWindow:
		return "fixed-window"
	case AlgorithmVegas:
		return "vegas"
	default:
		return "unknown"
	}
}

// FixedWindowParams bounds the classic SENDME circuit window, in cells.
type FixedWindowParams struct {
	CircWindowStart uint16
	CircWindowMin   uint16
	CircWindowMax   uint16
}

// RoundTripParams tunes the RTT estimator.
type RoundTripParams struct {
	EwmaCwndPct      Percentage
	EwmaMax          uint32
	EwmaSlowStartMax uint32
	RttResetPct      Percentage
}

// CongestionWindowParams tunes the congestion window, in cells.
type CongestionWindowParams struct {
	CwndInit        uint32
	CwndIncPctSS    Percentage
	CwndInc         uint32
	CwndIncRate     uint32
	CwndMin         uint32
	CwndMax         uint32
	SendmeIncrement uint32
}

// CircuitParameters is the immutable per-circuit policy. Build it with
// NewCircuitParameters so the bounds are checked once.
type CircuitParameters struct {
	alg                 Algorithm
	fixed               FixedWindowParams
	rtt                 RoundTripParams
	cwnd                CongestionWindowParams
	extendedFlowControl bool
}

// NewCircuitParameters validates and freezes a parameter set. Violations are
// ParameterBuildError: they are programming errors, not network conditions.
func NewCircuitParameters(alg Algorithm, fixed FixedWindowParams, rtt RoundTripParams, cwnd CongestionWindowParams, extendedFlowControl bool) (CircuitParameters, error) {
	p := CircuitParameters{alg: alg, fixed: fixed, rtt: rtt, cwnd: cwnd, extendedFlowControl: extendedFlowControl}
	if err := p.validate(); err != nil {
		return CircuitParameters{}, apperror.New(apperror.ParameterBuildError, "build circuit parameters", alg.String(), err)
	}
	return p, nil
}

func (p CircuitParameters) validate() error {
	var errs []error
	switch p.alg {
	case AlgorithmFixedWindow, AlgorithmVegas:
	default:
		errs = append(errs, fmt.Errorf("unknown algorithm %d", p.alg))
	}
	f := p.fixed
	if f.CircWindowMin == 0 {
		errs = append(errs, errors.New("fixed window: min must be positive"))
	}
	if !(f.CircWindowMin <= f.CircWindowStart && f.CircWindowStart <= f.CircWindowMax) {
		errs = append(errs, fmt.Errorf("fixed window: need min <= start <= max, got %d/%d/%d",
			f.CircWindowMin, f.CircWindowStart, f.CircWindowMax))
	}
	r := p.rtt
	if !r.EwmaCwndPct.Valid() || !r.RttResetPct.Valid() {
		errs = append(errs, fmt.Errorf("rtt: percentages must be in [0,100], got %d/%d", r.EwmaCwndPct, r.RttResetPct))
	}
	if r.EwmaMax == 0 || r.EwmaSlowStartMax == 0 {
		errs = append(errs, errors.New("rtt: sample counts must be positive"))
	}
	c := p.cwnd
	if !c.CwndIncPctSS.Valid() {
		errs = append(errs, fmt.Errorf("cwnd: slow start increment %d%% out of range", c.CwndIncPctSS))
	}
	if !(c.CwndMin <= c.CwndInit && c.CwndInit <= c.CwndMax) {
		errs = append(errs, fmt.Errorf("cwnd: need min <= init <= max, got %d/%d/%d", c.CwndMin, c.CwndInit, c.CwndMax))
	}
	if c.SendmeIncrement == 0 || c.CwndIncRate == 0 {
		errs = append(errs, errors.New("cwnd: sendme increment and increment rate must be positive"))
	}
	return errors.Join(errs...)
}

func (p CircuitParameters) Algorithm() Algorithm                     { return p.alg }
func (p CircuitParameters) FixedWindow() FixedWindowParams           { return p.fixed }
func (p CircuitParameters) RoundTrip() RoundTripParams               { return p.rtt }
func (p CircuitParameters) CongestionWindow() CongestionWindowParams { return p.cwnd }
func (p CircuitParameters) ExtendedFlowControl() bool                { return p.extendedFlowControl }

// InitialWindow is the package window a new circuit starts with.
func (p CircuitParameters) InitialWindow() int {
	if p.alg == AlgorithmVegas {
		return int(p.cwnd.CwndInit)
	}
	return int(p.fixed.CircWindowStart)
}

// MaxWindow is the largest package window a SENDME may grow it to.
func (p CircuitParameters) MaxWindow() int {
	if p.alg == AlgorithmVegas {
		return int(min(p.cwnd.CwndMax, 1<<30))
	}
	return int(p.fixed.CircWindowMax)
}

// SendmeIncrement is the number of cells acknowledged by one circuit SENDME.
func (p CircuitParameters) SendmeIncrement() int {
	if p.alg == AlgorithmVegas {
		return int(p.cwnd.SendmeIncrement)
	}
	return CircWindowIncrement
}

const (
	// CircWindowIncrement is the fixed-window SENDME increment.
	CircWindowIncrement = 100
	// DefaultCircWindow is the fixed circuit window both ends start from.
	DefaultCircWindow = 1000
)
