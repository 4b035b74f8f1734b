package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/handler"
	"ikedadada/go-onehop/internal/infrastructure/metrics"
	"ikedadada/go-onehop/internal/infrastructure/repository"
	"ikedadada/go-onehop/internal/infrastructure/service"
	"ikedadada/go-onehop/internal/usecase"
)

const defaultCircuitTTL = 10 * time.Minute

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept client links and relay their streams",
		Long: `Serve listens for client links and exits every BEGIN stream to its target.

When --fingerprint is empty a random identity is generated and printed.

Examples:
  onehop-relay serve --listen :9001
  onehop-relay serve --listen 127.0.0.1:9001 \
    --fingerprint AABBCCDDEEFF00112233445566778899AABBCCDD --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("listen", ":9001", "Address to accept client links on")
	cmd.Flags().String("fingerprint", "", "Identity announced in CERTS (40 hex characters)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Duration("circuit-ttl", defaultCircuitTTL, "Destroy circuits idle for this long")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	listen, _ := cmd.Flags().GetString("listen")
	fp, _ := cmd.Flags().GetString("fingerprint")
	ttl, _ := cmd.Flags().GetDuration("circuit-ttl")
	if f := cmd.Flags().Lookup("metrics-addr"); f.Changed {
		cfg.MetricsAddr = f.Value.String()
	}

	id, err := relayIdentity(fp)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n", id)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	uc := usecase.NewRelayUseCase(usecase.RelayConfig{
		Identity:         id,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ConnectTimeout:   cfg.ConnectTimeout,
		CircuitTTL:       ttl,
		MaxCircuits:      cfg.MaxCircuitsPerChannel,
	}, service.NewLinkAcceptor(log), service.NewCryptoService(), service.NewTCPDialer(30*time.Second),
		repository.NewCircuitTableRepository, m, log)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}
	log.Info("relay identity", "fingerprint", id.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.NewRelayHandler(uc, log).Serve(gctx, ln)
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	err = g.Wait()
	log.Info("relay stopped")
	return err
}

// relayIdentity parses fp, or makes a random identity when fp is empty.
func relayIdentity(fp string) (vo.RelayIdentity, error) {
	if fp != "" {
		return vo.ParseFingerprint(fp)
	}
	b := make([]byte, vo.RelayIdentityLen)
	if _, err := rand.Read(b); err != nil {
		return vo.RelayIdentity{}, fmt.Errorf("generate identity: %w", err)
	}
	return vo.RelayIdentityFromBytes(b)
}
