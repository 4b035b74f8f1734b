package usecase_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ikedadada/go-onehop/internal/domain/apperror"
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/infrastructure/directory"
	"ikedadada/go-onehop/internal/infrastructure/logger"
	"ikedadada/go-onehop/internal/usecase"
	"ikedadada/go-onehop/internal/usecase/service"
)

type mockChannelManager struct {
	launches  int
	launchErr error
	calls     int
}

func (m *mockChannelManager) GetOrCreate(context.Context, entity.ChannelTarget, vo.ChannelUsage) (*entity.Channel, vo.Provenance, error) {
	m.calls++
	return nil, vo.Reused, apperror.New(apperror.ConnectError, "connect", "", errors.New("mock"))
}

func (m *mockChannelManager) LaunchBackgroundTasks(service.NetDirProvider) error {
	m.launches++
	return m.launchErr
}

func (m *mockChannelManager) Close() error { return nil }

type mockMetrics struct {
	service.NopMetrics
	connects int
	lastErr  error
}

func (m *mockMetrics) ObserveConnect(_ time.Time, err error) {
	m.connects++
	m.lastErr = err
}

func newMockConnect(cm usecase.ChannelManager, m service.Metrics) usecase.ConnectUseCase {
	dir := directory.NewSingleRelayProvider(0, logger.Discard())
	return usecase.NewConnectUseCase(dir, cm, newTestBuilder(time.Second),
		usecase.NewStreamOpener(time.Second, nil, logger.Discard()), m, logger.Discard())
}

func validInput() usecase.ConnectInput {
	return usecase.ConnectInput{
		RelayIP:     "127.0.0.1",
		RelayPort:   9001,
		Fingerprint: testFingerprint,
		TargetHost:  "example.invalid",
		TargetPort:  80,
	}
}

func TestConnectUseCase_NotInitialized(t *testing.T) {
	cm := &mockChannelManager{}
	uc := newMockConnect(cm, nil)

	_, err := uc.Handle(context.Background(), validInput())
	if !errors.Is(err, apperror.NotInitialized) {
		t.Fatalf("err = %v, want NotInitialized", err)
	}
	if cm.calls != 0 {
		t.Fatalf("channel manager called before Init")
	}
}

func TestConnectUseCase_InitTwiceIsNoop(t *testing.T) {
	cm := &mockChannelManager{}
	uc := newMockConnect(cm, nil)

	for range 2 {
		if err := uc.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	if cm.launches != 1 {
		t.Fatalf("background tasks launched %d times", cm.launches)
	}
	if uc.State() != usecase.StateInitialized {
		t.Fatalf("state = %v", uc.State())
	}
}

func TestConnectUseCase_InitFailure(t *testing.T) {
	uc := newMockConnect(&mockChannelManager{launchErr: errors.New("boom")}, nil)
	if err := uc.Init(); !errors.Is(err, apperror.ConstructionFailure) {
		t.Fatalf("err = %v, want ConstructionFailure", err)
	}
	if uc.State() != usecase.StateUninitialized {
		t.Fatalf("state = %v", uc.State())
	}
}

func TestConnectUseCase_InputValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*usecase.ConnectInput)
		wantKind apperror.Kind
	}{
		{"short fingerprint", func(in *usecase.ConnectInput) { in.Fingerprint = "AAAA" }, apperror.InvalidFingerprint},
		{"non-hex fingerprint", func(in *usecase.ConnectInput) { in.Fingerprint = "zz" + testFingerprint[2:] }, apperror.InvalidFingerprint},
		{"hostname relay", func(in *usecase.ConnectInput) { in.RelayIP = "relay.example" }, apperror.InvalidAddress},
		{"zero port", func(in *usecase.ConnectInput) { in.RelayPort = 0 }, apperror.InvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := &mockChannelManager{}
			m := &mockMetrics{}
			uc := newMockConnect(cm, m)
			if err := uc.Init(); err != nil {
				t.Fatal(err)
			}
			in := validInput()
			tt.mutate(&in)

			_, err := uc.Handle(context.Background(), in)
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want %v", err, tt.wantKind)
			}
			if cm.calls != 0 {
				t.Fatalf("channel manager reached with invalid input")
			}
			if m.connects != 1 || m.lastErr == nil {
				t.Fatalf("metrics: connects=%d err=%v", m.connects, m.lastErr)
			}
		})
	}
}

func TestConnectUseCase_Handle(t *testing.T) {
	d := &pipeDialer{relay: newFakeRelay(t, relayMode{})}
	cm := newTestManager(t, d, testManagerConfig())
	uc := newMockConnect(cm, nil)
	if err := uc.Init(); err != nil {
		t.Fatal(err)
	}

	wantProv := []vo.Provenance{vo.NewlyCreated, vo.Reused}
	for i, want := range wantProv {
		out, err := uc.Handle(context.Background(), validInput())
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if out.Provenance != want {
			t.Fatalf("attempt %d: provenance = %v, want %v", i, out.Provenance, want)
		}
		body, err := io.ReadAll(out.Stream)
		if err != nil || string(body) != "hello" {
			t.Fatalf("attempt %d: read %q, %v", i, body, err)
		}
		out.Stream.Close()

		circ := out.Stream.Circuit()
		select {
		case <-circ.Done():
		case <-time.After(time.Second):
			t.Fatalf("attempt %d: circuit not closed after its stream", i)
		}
	}
	if got := d.count.Load(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
}

func TestConnectUseCase_StreamRejectedClosesCircuit(t *testing.T) {
	cm := newTestManager(t, &pipeDialer{relay: newFakeRelay(t, relayMode{endBegin: true})}, testManagerConfig())
	uc := newMockConnect(cm, nil)
	if err := uc.Init(); err != nil {
		t.Fatal(err)
	}

	_, err := uc.Handle(context.Background(), validInput())
	if !errors.Is(err, apperror.StreamRejected) {
		t.Fatalf("err = %v, want StreamRejected", err)
	}
	var ee *entity.EndError
	if !errors.As(err, &ee) || ee.Reason != vo.EndReasonConnectRefused {
		t.Fatalf("err = %v, want EndError(connect-refused)", err)
	}
}

// closingChannelManager closes the first channel it hands out, as an idle
// sweep racing the caller would.
type closingChannelManager struct {
	usecase.ChannelManager
	closed bool
}

func (m *closingChannelManager) GetOrCreate(ctx context.Context, target entity.ChannelTarget, usage vo.ChannelUsage) (*entity.Channel, vo.Provenance, error) {
	ch, prov, err := m.ChannelManager.GetOrCreate(ctx, target, usage)
	if err != nil || m.closed {
		return ch, prov, err
	}
	m.closed = true
	ch.Close()
	return ch, vo.Reused, nil
}

func TestConnectUseCase_RetriesClosedReusedChannel(t *testing.T) {
	d := &pipeDialer{relay: newFakeRelay(t, relayMode{})}
	cm := &closingChannelManager{ChannelManager: newTestManager(t, d, testManagerConfig())}
	uc := newMockConnect(cm, nil)
	if err := uc.Init(); err != nil {
		t.Fatal(err)
	}

	out, err := uc.Handle(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer out.Stream.Close()
	if out.Provenance != vo.NewlyCreated {
		t.Fatalf("provenance = %v, want newly-created after retry", out.Provenance)
	}
	if got := d.count.Load(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
}
