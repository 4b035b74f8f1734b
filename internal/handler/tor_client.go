package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ikedadada/go-onehop/internal/config"
	"ikedadada/go-onehop/internal/domain/apperror"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/infrastructure/directory"
	"ikedadada/go-onehop/internal/infrastructure/repository"
	infraSvc "ikedadada/go-onehop/internal/infrastructure/service"
	"ikedadada/go-onehop/internal/usecase"
	"ikedadada/go-onehop/internal/usecase/service"
)

// tcpKeepAlive is the keep-alive period of relay connections.
const tcpKeepAlive = 30 * time.Second

// TorClient is the blocking binding surface over the connect pipeline.
type TorClient struct {
	cfg *config.Config
	uc  usecase.ConnectUseCase
	log *slog.Logger
}

type clientOptions struct {
	dialer  service.Dialer
	metrics service.Metrics
}

// Option customises a TorClient.
type Option func(*clientOptions)

// WithDialer replaces the TCP dialer used to reach relays.
func WithDialer(d service.Dialer) Option {
	return func(o *clientOptions) { o.dialer = d }
}

// WithMetrics records connector events on m.
func WithMetrics(m service.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewTorClient builds the whole pipeline. A nil cfg means defaults.
func NewTorClient(cfg *config.Config, log *slog.Logger, opts ...Option) (*TorClient, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperror.New(apperror.ConstructionFailure, "new client", "", err)
	}
	o := clientOptions{dialer: infraSvc.NewTCPDialer(tcpKeepAlive), metrics: service.NopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}

	repo, err := repository.NewChannelRepository(cfg.MaxChannels)
	if err != nil {
		return nil, apperror.New(apperror.ConstructionFailure, "new client", "", err)
	}
	dir := directory.NewSingleRelayProvider(cfg.EventBuffer, log)
	cm := usecase.NewChannelManager(usecase.ChannelManagerConfig{
		ConnectTimeout:        cfg.ConnectTimeout,
		HandshakeTimeout:      cfg.HandshakeTimeout,
		MaxCircuitsPerChannel: cfg.MaxCircuitsPerChannel,
	}, o.dialer, infraSvc.NewLinkHandshaker(log), repo, o.metrics, log)
	builder := usecase.NewCircuitBuilder(infraSvc.NewCryptoService(), cfg.HandshakeTimeout, o.metrics, log)
	opener := usecase.NewStreamOpener(cfg.StreamTimeout, o.metrics, log)

	return &TorClient{
		cfg: cfg,
		uc:  usecase.NewConnectUseCase(dir, cm, builder, opener, o.metrics, log),
		log: log,
	}, nil
}

// Init must be called once before Connect.
func (c *TorClient) Init() error { return c.uc.Init() }

// Connect fetches targetURL through the relay and returns the raw HTTP
// response. It blocks until the response is read or a stage fails.
func (c *TorClient) Connect(relayIP string, relayPort uint16, fingerprint, targetURL string, targetPort uint16) (string, error) {
	return c.ConnectContext(context.Background(), relayIP, relayPort, fingerprint, targetURL, targetPort)
}

// ConnectContext is Connect bounded by ctx.
func (c *TorClient) ConnectContext(ctx context.Context, relayIP string, relayPort uint16, fingerprint, targetURL string, targetPort uint16) (string, error) {
	host, path, err := vo.ParseTargetURL(targetURL)
	if err != nil {
		return "", err
	}

	out, err := c.uc.Handle(ctx, usecase.ConnectInput{
		RelayIP:     relayIP,
		RelayPort:   relayPort,
		Fingerprint: fingerprint,
		TargetHost:  host,
		TargetPort:  targetPort,
	})
	if err != nil {
		return "", err
	}
	stream := out.Stream
	defer stream.Close()
	target := fmt.Sprintf("%s:%d", host, targetPort)

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if _, err := io.WriteString(stream, req); err != nil {
		return "", apperror.New(apperror.WriteError, "write request", target, err)
	}

	resp, err := readResponse(stream, c.cfg.StreamTimeout, int64(c.cfg.MaxResponseBytes), target)
	if err != nil {
		return "", err
	}
	c.log.Debug("response read", "target", target, "bytes", len(resp), "channel", out.Channel.String(), "provenance", out.Provenance.String())
	return resp, nil
}

// readResponse reads r to EOF. r is closed if the read outlasts timeout; a
// read that completed before the close is still a success.
func readResponse(r io.ReadCloser, timeout time.Duration, limit int64, target string) (string, error) {
	timer := time.AfterFunc(timeout, func() { r.Close() })

	var resp strings.Builder
	n, err := io.Copy(&resp, io.LimitReader(r, limit+1))
	// Stop reports false once the timer has fired and closed r.
	stopped := timer.Stop()
	switch {
	case err != nil && !stopped:
		return "", apperror.Errorf(apperror.StreamTimeout, "read response", target, "no end of response after %s", timeout)
	case err != nil:
		return "", apperror.New(apperror.ReadError, "read response", target, err)
	case n > limit:
		return "", apperror.Errorf(apperror.ReadError, "read response", target, "response exceeds %d bytes", limit)
	}
	return resp.String(), nil
}

// Close tears down every channel. The client cannot be used afterwards.
func (c *TorClient) Close() error { return c.uc.Close() }
