// file: internal/usecase/connect_usecase.go
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ikedadada/go-onehop/internal/domain/apperror"
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/usecase/service"
)

// ---------- 状態 ----------

// ConnectState is where a connector or one of its attempts stands.
type ConnectState int

const (
	StateUninitialized ConnectState = iota
	StateInitialized
	StateConnecting
	StateChannelReady
	StateCircuitReady
	StateStreamReady
	StateFailed
)

func (s ConnectState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateChannelReady:
		return "channel-ready"
	case StateCircuitReady:
		return "circuit-ready"
	case StateStreamReady:
		return "stream-ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ---------- DTO ----------

// ConnectInput names the relay and the stream target of one attempt.
type ConnectInput struct {
	RelayIP     string
	RelayPort   uint16
	Fingerprint string
	TargetHost  string
	TargetPort  uint16
}

// ConnectOutput is an open stream. Closing it also closes its circuit.
type ConnectOutput struct {
	Stream     *entity.Stream
	Channel    vo.ChannelID
	Circuit    vo.CircuitID
	Provenance vo.Provenance
}

// ---------- UseCase インターフェース ----------

// ConnectUseCase drives the whole connect pipeline.
type ConnectUseCase interface {
	// Init starts the directory-driven background work. Calling it again
	// is a no-op.
	Init() error
	Handle(ctx context.Context, in ConnectInput) (ConnectOutput, error)
	State() ConnectState
	Close() error
}

// ---------- 実装 ----------

type connectUseCaseImpl struct {
	dir     service.NetDirProvider
	chans   ChannelManager
	builder CircuitBuilder
	opener  StreamOpener
	metrics service.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	state ConnectState
}

// NewConnectUseCase wires the pipeline stages together.
func NewConnectUseCase(dir service.NetDirProvider, cm ChannelManager, b CircuitBuilder, o StreamOpener, m service.Metrics, log *slog.Logger) ConnectUseCase {
	if m == nil {
		m = service.NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &connectUseCaseImpl{dir: dir, chans: cm, builder: b, opener: o, metrics: m, log: log}
}

func (uc *connectUseCaseImpl) State() ConnectState {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.state
}

func (uc *connectUseCaseImpl) Init() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.state == StateInitialized {
		return nil
	}
	if err := uc.chans.LaunchBackgroundTasks(uc.dir); err != nil {
		return apperror.New(apperror.ConstructionFailure, "init", "", err)
	}
	uc.state = StateInitialized
	uc.log.Debug("connector initialized")
	return nil
}

func (uc *connectUseCaseImpl) Handle(ctx context.Context, in ConnectInput) (out ConnectOutput, err error) {
	start := time.Now()
	defer func() { uc.metrics.ObserveConnect(start, err) }()

	if uc.State() != StateInitialized {
		return ConnectOutput{}, apperror.New(apperror.NotInitialized, "connect", in.Fingerprint, nil)
	}

	log := uc.log.With("target", fmt.Sprintf("%s:%d", in.TargetHost, in.TargetPort))
	step := func(s ConnectState) { log.Debug("connect state", "state", s.String()) }
	defer func() {
		if err != nil {
			log.Debug("connect state", "state", StateFailed.String(), "kind", apperror.KindOf(err).String())
		}
	}()
	step(StateConnecting)

	id, err := vo.ParseFingerprint(in.Fingerprint)
	if err != nil {
		return ConnectOutput{}, err
	}
	ep, err := vo.ResolveAddress(in.RelayIP, in.RelayPort)
	if err != nil {
		return ConnectOutput{}, err
	}
	target, err := entity.NewChannelTarget(id, []vo.Endpoint{ep})
	if err != nil {
		return ConnectOutput{}, apperror.New(apperror.InvalidAddress, "channel target", ep.String(), err)
	}

	ch, prov, err := uc.chans.GetOrCreate(ctx, target, vo.UsageUserTraffic)
	if err != nil {
		return ConnectOutput{}, err
	}
	step(StateChannelReady)

	params, err := uc.builder.BuildParameters()
	if err != nil {
		return ConnectOutput{}, apperror.New(apperror.ParameterBuildError, "build parameters", target.String(), err)
	}
	circ, err := uc.builder.CreateCircuit(ctx, ch, id, target.Addrs(), params)
	if err != nil && prov == vo.Reused && !ch.IsUsable() {
		// A cached channel can close between lookup and circuit allocation.
		log.Debug("reused channel closed, retrying once", "channel", ch.ID().String())
		ch, prov, err = uc.chans.GetOrCreate(ctx, target, vo.UsageUserTraffic)
		if err != nil {
			return ConnectOutput{}, err
		}
		circ, err = uc.builder.CreateCircuit(ctx, ch, id, target.Addrs(), params)
	}
	if err != nil {
		return ConnectOutput{}, err
	}
	step(StateCircuitReady)

	stream, err := uc.opener.BeginStream(ctx, circ, in.TargetHost, in.TargetPort, StreamOptions{})
	if err != nil {
		circ.Close()
		return ConnectOutput{}, err
	}
	circ.CloseWhenIdle()
	step(StateStreamReady)

	return ConnectOutput{
		Stream:     stream,
		Channel:    ch.ID(),
		Circuit:    circ.ID(),
		Provenance: prov,
	}, nil
}

func (uc *connectUseCaseImpl) Close() error {
	uc.mu.Lock()
	uc.state = StateUninitialized
	uc.mu.Unlock()
	return uc.chans.Close()
}
