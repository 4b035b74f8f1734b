// file: internal/usecase/circuit_builder.go
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"ikedadada/go-onehop/internal/domain/apperror"
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/usecase/service"
)

// CircuitBuilder creates single-hop circuits with CREATE_FAST.
type CircuitBuilder interface {
	// BuildParameters returns the fixed congestion control policy.
	BuildParameters() (vo.CircuitParameters, error)
	// CreateCircuit runs CREATE_FAST on ch. Failures release the circuit ID.
	CreateCircuit(ctx context.Context, ch *entity.Channel, id vo.RelayIdentity, addrs []vo.Endpoint, params vo.CircuitParameters) (*entity.Circuit, error)
}

type circuitBuilderImpl struct {
	crypto           service.CryptoService
	handshakeTimeout time.Duration
	metrics          service.Metrics
	log              *slog.Logger
}

// NewCircuitBuilder returns a CircuitBuilder bounding CREATE_FAST by timeout.
func NewCircuitBuilder(c service.CryptoService, timeout time.Duration, m service.Metrics, log *slog.Logger) CircuitBuilder {
	if m == nil {
		m = service.NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &circuitBuilderImpl{crypto: c, handshakeTimeout: timeout, metrics: m, log: log}
}

func (b *circuitBuilderImpl) BuildParameters() (vo.CircuitParameters, error) {
	return vo.NewCircuitParameters(
		vo.AlgorithmFixedWindow,
		vo.FixedWindowParams{CircWindowStart: 1000, CircWindowMin: 100, CircWindowMax: 1000},
		vo.RoundTripParams{EwmaCwndPct: 50, EwmaMax: 10, EwmaSlowStartMax: 2, RttResetPct: 100},
		vo.CongestionWindowParams{
			CwndInit:        124,
			CwndIncPctSS:    100,
			CwndInc:         1,
			CwndIncRate:     31,
			CwndMin:         124,
			CwndMax:         math.MaxUint32,
			SendmeIncrement: 31,
		},
		true,
	)
}

func (b *circuitBuilderImpl) CreateCircuit(ctx context.Context, ch *entity.Channel, id vo.RelayIdentity, addrs []vo.Endpoint, params vo.CircuitParameters) (*entity.Circuit, error) {
	target := "$" + id.String()
	if len(addrs) > 0 {
		target += "@" + addrs[0].String()
	}
	if !ch.Identity().Equal(id) {
		return nil, apperror.Errorf(apperror.CircuitAllocationError, "allocate circuit", target,
			"channel belongs to %s", ch.Identity())
	}

	pc, err := ch.NewCirc()
	if err != nil {
		return nil, apperror.New(apperror.CircuitAllocationError, "allocate circuit", target, err)
	}
	log := b.log.With("relay", id.String(), "circ", pc.ID().String())

	x, err := b.crypto.FastHandshakeStart()
	if err != nil {
		pc.Abort(vo.DestroyNone)
		return nil, apperror.New(apperror.HandshakeRejected, "create_fast", target, err)
	}
	if err := pc.Send(vo.CmdCreateFast, x); err != nil {
		pc.Abort(vo.DestroyNone)
		return nil, apperror.New(apperror.ChannelError, "create_fast", target, err)
	}
	log.Debug("create_fast sent")

	hctx, cancel := context.WithTimeout(ctx, b.handshakeTimeout)
	defer cancel()
	reply, err := pc.Await(hctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		pc.Abort(vo.DestroyRequested)
		return nil, apperror.New(apperror.HandshakeTimeout, "create_fast", target, err)
	default:
		pc.Abort(vo.DestroyNone)
		return nil, apperror.New(apperror.ChannelError, "create_fast", target, err)
	}

	switch reply.Cmd {
	case vo.CmdCreatedFast:
	case vo.CmdDestroy:
		pc.Abort(vo.DestroyNone)
		reason := vo.DestroyNone
		if len(reply.Payload) > 0 {
			reason = vo.DestroyReason(reply.Payload[0])
		}
		return nil, apperror.New(apperror.HandshakeRejected, "create_fast", target, &entity.DestroyedError{Reason: reason})
	default:
		pc.Abort(vo.DestroyProtocol)
		return nil, apperror.Errorf(apperror.HandshakeRejected, "create_fast", target, "unexpected %s reply", reply.Cmd)
	}

	crypto, err := b.crypto.FastHandshakeFinish(x, reply.Payload)
	clear(x)
	if err != nil {
		pc.Abort(vo.DestroyProtocol)
		return nil, apperror.New(apperror.HandshakeRejected, "create_fast", target, err)
	}

	circ := pc.Complete(crypto, params)
	b.metrics.ObserveCircuit()
	log.Debug("circuit open", "algorithm", params.Algorithm().String())
	return circ, nil
}
