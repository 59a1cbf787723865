// Package monitoring exposes Prometheus metrics and pprof over HTTP.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/network/socket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf     config.Monitoring
	server   *http.Server
	listener net.Listener
	log      *logger.Logger
}

// New creates new monitoring service.
// Metrics are read from the gatherer.
func New(conf config.Monitoring, gatherer prometheus.Gatherer, log *logger.Logger) *Monitoring {
	log = log.Mod("monitoring")
	h := http.NewServeMux()

	if conf.ProfilingEnabled {
		prefix := fmt.Sprintf("%s/debug/pprof", conf.URLPrefix)
		log.Info().Msgf("Profiling is enabled at %v", prefix)
		h.HandleFunc(prefix+"/", pprof.Index)
		h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		h.HandleFunc(prefix+"/profile", pprof.Profile)
		h.HandleFunc(prefix+"/symbol", pprof.Symbol)
		h.HandleFunc(prefix+"/trace", pprof.Trace)
		// named profiles are not served by the index under a custom prefix
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			h.Handle(prefix+"/"+name, pprof.Handler(name))
		}
	}

	if conf.MetricEnabled {
		metricPath := fmt.Sprintf("%s/metrics", conf.URLPrefix)
		log.Info().Msgf("Prometheus metric is enabled at %v", metricPath)
		h.Handle(metricPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Monitoring{
		conf:   conf,
		server: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
		log:    log,
	}
}

// Run starts serving in background, busy ports are rolled over.
func (m *Monitoring) Run() error {
	l, err := socket.ListenTCPRoll(m.conf.Port)
	if err != nil {
		return err
	}
	m.listener = l
	m.log.Info().Msgf("Starting monitoring server at %v", l.Addr())
	go func() {
		if err := m.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("monitoring server")
		}
	}()
	return nil
}

// Addr is the bound address, empty before Run.
func (m *Monitoring) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Info().Msg("Shutting down monitoring server")
	return m.server.Shutdown(ctx)
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
