package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ikedadada/go-onehop/internal/domain/apperror"
	vo "ikedadada/go-onehop/internal/domain/value_object"
	"ikedadada/go-onehop/internal/infrastructure/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveChannel(vo.NewlyCreated)
	m.ObserveChannel(vo.Reused)
	m.ObserveChannel(vo.Reused)
	m.ObserveConnect(time.Now(), apperror.New(apperror.ConnectError, "connect", "", errors.New("refused")))
	m.ObserveConnect(time.Now(), nil)
	m.ObserveRelayed("exit", 10)
	m.RelayCircuitOpened()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	series := map[string]int{}
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
	}
	want := map[string]int{
		"onehop_channels_total":           2,
		"onehop_connect_failures_total":   1,
		"onehop_connect_duration_seconds": 1,
		"onehop_relay_bytes_total":        1,
		"onehop_relay_open_circuits":      1,
	}
	for name, n := range want {
		if series[name] != n {
			t.Errorf("%s: %d series, want %d", name, series[name], n)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveChannel(vo.Reused)
	m.ObserveChannelDropped()
	m.ObserveCircuit()
	m.ObserveStream()
	m.ObserveConnect(time.Now(), nil)
	m.ObserveRelayed("client", 1)
	m.RelayCircuitOpened()
	m.RelayCircuitClosed()
}
