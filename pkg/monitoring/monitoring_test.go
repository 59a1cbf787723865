package monitoring

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	metrics.SessionsCreated.Inc()
	metrics.FramesDropped.WithLabelValues("format").Add(2)

	if v := testutil.ToFloat64(metrics.SessionsCreated); v != 1 {
		t.Errorf("sessions created %v", v)
	}

	m := New(config.Monitoring{Port: 0, URLPrefix: "/canary", MetricEnabled: true, ProfilingEnabled: true}, reg, logger.Nop())
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Shutdown(context.Background()) }()

	tests := []struct {
		path   string
		expect string
	}{
		{path: "/canary/metrics", expect: "canary_sessions_created_total 1"},
		{path: "/canary/metrics", expect: `canary_frames_dropped_total{reason="format"} 2`},
		{path: "/canary/debug/pprof/", expect: "goroutine"},
	}
	for _, test := range tests {
		resp, err := http.Get("http://" + m.Addr() + test.path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if !strings.Contains(string(body), test.expect) {
			t.Errorf("%v has no %v", test.path, test.expect)
		}
	}
}

func TestUnregisteredMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.HolePunching.Observe(0.3)
	if n := testutil.CollectAndCount(m.HolePunching); n != 1 {
		t.Errorf("histogram count %v", n)
	}
	// a second set on the same default registry should not panic
	_ = NewMetrics(nil)
}
