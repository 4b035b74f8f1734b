// file: internal/usecase/stream_opener.go
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"ikedadada/go-onehop/internal/domain/apperror"
	"ikedadada/go-onehop/internal/domain/entity"
	"ikedadada/go-onehop/internal/usecase/service"
)

// BEGIN flags.
const (
	beginFlagIPv6OK        = 1 << 0
	beginFlagIPv6Preferred = 1 << 2
)

// StreamOptions tune one BEGIN.
type StreamOptions struct {
	// Timeout bounds the wait for CONNECTED; zero means the opener default.
	Timeout       time.Duration
	IPv6Preferred bool
}

// StreamOpener opens application streams on established circuits.
type StreamOpener interface {
	BeginStream(ctx context.Context, circ *entity.Circuit, host string, port uint16, opts StreamOptions) (*entity.Stream, error)
}

type streamOpenerImpl struct {
	timeout time.Duration
	metrics service.Metrics
	log     *slog.Logger
}

// NewStreamOpener returns a StreamOpener waiting at most timeout for CONNECTED.
func NewStreamOpener(timeout time.Duration, m service.Metrics, log *slog.Logger) StreamOpener {
	if m == nil {
		m = service.NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &streamOpenerImpl{timeout: timeout, metrics: m, log: log}
}

func (o *streamOpenerImpl) BeginStream(ctx context.Context, circ *entity.Circuit, host string, port uint16, opts StreamOptions) (*entity.Stream, error) {
	target := net.JoinHostPort(host, strconv.Itoa(int(port)))

	s, err := circ.NewStream(target)
	if err != nil {
		return nil, apperror.New(apperror.StreamRejected, "begin stream", target, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	var flags uint32
	if opts.IPv6Preferred {
		flags = beginFlagIPv6OK | beginFlagIPv6Preferred
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Begin(sctx, flags); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.New(apperror.StreamTimeout, "begin stream", target, err)
		}
		return nil, apperror.New(apperror.StreamRejected, "begin stream", target, err)
	}
	o.metrics.ObserveStream()
	o.log.Debug("stream open", "circ", circ.ID().String(), "stream", s.ID().UInt16(), "target", target)
	return s, nil
}
