// file: internal/usecase/channel_manager.go
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ikedadada/go-onehop/internal/domain/apperror"
	"ikedadada/go-onehop/internal/domain/entity"
	"ikedadada/go-onehop/internal/domain/repository"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/usecase/service"
)

// ---------- 設定 ----------

// ChannelManagerConfig bounds channel establishment.
type ChannelManagerConfig struct {
	ConnectTimeout        time.Duration
	HandshakeTimeout      time.Duration
	MaxCircuitsPerChannel int
	// HousekeepingInterval is how often idle and dead channels are swept.
	HousekeepingInterval time.Duration
}

const defaultHousekeepingInterval = 30 * time.Second

// ---------- インターフェース ----------

// ChannelManager hands out one authenticated channel per relay.
type ChannelManager interface {
	// GetOrCreate returns a cached usable channel or opens a new one. At
	// most one connect per relay is in flight; concurrent callers share it.
	GetOrCreate(ctx context.Context, target entity.ChannelTarget, usage vo.ChannelUsage) (*entity.Channel, vo.Provenance, error)
	// LaunchBackgroundTasks starts keepalive and idle-channel cleanup
	// driven by p. It may only be called once.
	LaunchBackgroundTasks(p service.NetDirProvider) error
	// Close stops background work and closes every channel.
	Close() error
}

// ---------- 実装 ----------

type channelManagerImpl struct {
	cfg     ChannelManagerConfig
	dialer  service.Dialer
	hs      service.LinkHandshaker
	repo    repository.ChannelRepository
	metrics service.Metrics
	log     *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	params  vo.NetParameters
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewChannelManager wires a ChannelManager.
func NewChannelManager(cfg ChannelManagerConfig, d service.Dialer, hs service.LinkHandshaker,
	repo repository.ChannelRepository, m service.Metrics, log *slog.Logger) ChannelManager {
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = defaultHousekeepingInterval
	}
	if m == nil {
		m = service.NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &channelManagerImpl{
		cfg:     cfg,
		dialer:  d,
		hs:      hs,
		repo:    repo,
		metrics: m,
		log:     log,
		params:  vo.DefaultNetParameters(),
	}
}

func (m *channelManagerImpl) GetOrCreate(ctx context.Context, target entity.ChannelTarget, usage vo.ChannelUsage) (*entity.Channel, vo.Provenance, error) {
	if ch, err := m.repo.FindByIdentity(target.Identity()); err == nil && ch.Claim() {
		m.log.Debug("channel reused", "relay", target.Identity().String(), "channel", ch.ID().String())
		m.metrics.ObserveChannel(vo.Reused)
		return ch, vo.Reused, nil
	}

	// created is only written by the goroutine that runs the launch.
	created := false
	// The launch is shared by every joined caller and outlives any one of
	// them. The connect and handshake timeouts still bound it.
	lctx := context.WithoutCancel(ctx)
	res := m.group.DoChan(target.Identity().String(), func() (any, error) {
		if ch, err := m.repo.FindByIdentity(target.Identity()); err == nil && ch.Claim() {
			return ch, nil
		}
		ch, err := m.launch(lctx, target, usage)
		if err != nil {
			return nil, err
		}
		if err := m.repo.Save(ch); err != nil {
			ch.Close()
			return nil, apperror.New(apperror.ChannelError, "cache channel", target.String(), err)
		}
		created = true
		return ch, nil
	})

	select {
	case <-ctx.Done():
		kind := apperror.ConnectError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = apperror.ConnectTimeout
		}
		return nil, vo.Reused, apperror.New(kind, "connect", target.String(), ctx.Err())
	case r := <-res:
		if r.Err != nil {
			return nil, vo.Reused, r.Err
		}
		prov := vo.Reused
		if created {
			prov = vo.NewlyCreated
		}
		m.metrics.ObserveChannel(prov)
		return r.Val.(*entity.Channel), prov, nil
	}
}

// launch tries each address in order and returns the first channel that
// completes the link handshake.
func (m *channelManagerImpl) launch(ctx context.Context, target entity.ChannelTarget, usage vo.ChannelUsage) (*entity.Channel, error) {
	var lastErr error
	for _, addr := range target.Addrs() {
		log := m.log.With("relay", target.Identity().String(), "addr", addr.String())

		conn, err := m.dial(ctx, addr)
		if err != nil {
			log.Debug("connect failed", "err", err)
			lastErr = err
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		info, err := m.hs.Handshake(hctx, conn, target.Identity())
		cancel()
		if err != nil {
			conn.Close()
			kind := apperror.ChannelError
			if errors.Is(err, context.DeadlineExceeded) {
				kind = apperror.HandshakeTimeout
			}
			log.Debug("link handshake failed", "err", err)
			lastErr = apperror.New(kind, "link handshake", addr.String(), err)
			continue
		}

		ch := entity.NewChannel(conn, target, usage, info.Version, m.cfg.MaxCircuitsPerChannel, m.log)
		log.Debug("channel open", "channel", ch.ID().String(), "link_version", info.Version)
		return ch, nil
	}
	return nil, lastErr
}

func (m *channelManagerImpl) dial(ctx context.Context, addr vo.Endpoint) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	conn, err := m.dialer.DialContext(dctx, "tcp", addr.String())
	if err == nil {
		return conn, nil
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(dctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return nil, apperror.New(apperror.ConnectTimeout, "connect", addr.String(), err)
	}
	return nil, apperror.New(apperror.ConnectError, "connect", addr.String(), err)
}

// ---------- バックグラウンド ----------

func (m *channelManagerImpl) LaunchBackgroundTasks(p service.NetDirProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("channel manager: background tasks already running")
	}
	m.started = true
	m.params = p.Params()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.maintain(p, p.Events())
	return nil
}

func (m *channelManagerImpl) currentParams() vo.NetParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

func (m *channelManagerImpl) maintain(p service.NetDirProvider, sub service.Subscription) {
	defer close(m.done)
	defer sub.Close()

	ticker := time.NewTicker(m.cfg.HousekeepingInterval)
	defer ticker.Stop()

	events := sub.C()
	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			params := p.Params()
			m.mu.Lock()
			m.params = params
			m.mu.Unlock()
			m.log.Debug("directory event", "event", ev.String())
		case now := <-ticker.C:
			m.housekeep(now)
		}
	}
}

// housekeep drops dead and idle channels and pads quiet ones.
func (m *channelManagerImpl) housekeep(now time.Time) {
	params := m.currentParams()
	for _, ch := range m.repo.All() {
		log := m.log.With("channel", ch.ID().String())
		switch since, unused := ch.UnusedSince(); {
		case !ch.IsUsable():
			_ = m.repo.Delete(ch)
			m.metrics.ObserveChannelDropped()
			log.Debug("dropped closed channel")
		case unused && params.ChannelIdleTimeout > 0 && now.Sub(since) >= params.ChannelIdleTimeout:
			if !ch.CloseIfIdle(now, params.ChannelIdleTimeout) {
				continue
			}
			_ = m.repo.Delete(ch)
			m.metrics.ObserveChannelDropped()
			log.Debug("dropped idle channel", "idle", now.Sub(since))
		case params.KeepalivePeriod > 0 && now.Sub(ch.LastActivity()) >= params.KeepalivePeriod:
			if err := ch.SendPadding(); err != nil {
				log.Debug("keepalive failed", "err", err)
			}
		}
	}
}

func (m *channelManagerImpl) Close() error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	m.repo.Purge()
	return nil
}
