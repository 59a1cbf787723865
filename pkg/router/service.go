package router

import (
	"context"
	"errors"
	"time"

	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/session"
	"github.com/giongto35/rtc-canary/pkg/signaling"
)

// Start makes the signaling transport, waits for the relay servers and
// connects. The viewer sends its offer to the master. A failed dial or
// connect is retried by the reaper.
func (r *Router) Start(ctx context.Context) error {
	t, err := r.dial(r)
	if err != nil {
		r.fault.Store(true)
		return err
	}
	r.setTransport(t)
	r.waitRelays(ctx, t)

	if !r.conf.AutoConnect {
		return nil
	}
	if err = r.connect(ctx, t); err != nil {
		r.log.Warn().Err(err).Msg("Signaling connect")
		return nil
	}
	if r.conf.IsViewer() {
		return r.Offer(ctx)
	}
	return nil
}

// waitRelays polls the transport for the relay servers no longer than
// the configured wait. Nothing fetched is not an error.
func (r *Router) waitRelays(ctx context.Context, t signaling.Transport) {
	wait := r.wconf.IceConfigWait
	if wait <= 0 {
		return
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(relayPollPeriod)
	defer tick.Stop()
	for {
		servers, err := t.IceServers(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("ICE servers")
		}
		if len(servers) > 0 {
			r.mu.Lock()
			r.relays = servers
			r.mu.Unlock()
			r.log.Debug().Msgf("%v ICE servers", len(servers))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			r.log.Debug().Msgf("No ICE servers in %v", wait)
			return
		case <-tick.C:
		}
	}
}

func (r *Router) connect(ctx context.Context, t signaling.Transport) error {
	timeout := r.conf.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Connect(cctx)
}

// Offer creates the only session of the viewer and sends its offer.
func (r *Router) Offer(ctx context.Context) error {
	if !r.conf.IsViewer() {
		return ErrUnexpectedMessage
	}
	r.mu.Lock()
	s := r.table[r.peerId]
	if s == nil {
		var err error
		if s, err = r.createLocked(r.peerId); err != nil {
			r.mu.Unlock()
			return err
		}
		r.drainLocked(s)
	}
	r.mu.Unlock()

	offer, err := s.CreateOffer(ctx)
	if err != nil {
		return err
	}
	payload, err := signaling.EncodeDescription(offer)
	if err != nil {
		return err
	}
	return r.send(ctx, signaling.Message{Type: signaling.Offer, PeerId: r.peerId, Payload: payload})
}

// Reap is one tick of the service loop. It removes terminated sessions,
// expires pending queues and restores the signaling transport.
func (r *Router) Reap(ctx context.Context) {
	r.mu.Lock()
	r.listMu.Lock()
	var dead []*session.Session
	for i := 0; i < len(r.list); {
		s := r.list[i]
		if !s.IsTerminated() {
			i++
			continue
		}
		last := len(r.list) - 1
		r.list[i] = r.list[last]
		r.list[last] = nil
		r.list = r.list[:last]
		if r.table[s.PeerId()] == s {
			delete(r.table, s.PeerId())
		}
		dead = append(dead, s)
	}
	n := len(r.list)
	r.listMu.Unlock()
	expired := r.pending.expire(r.now())
	queues := r.pending.count()
	r.mu.Unlock()

	for _, s := range dead {
		if err := s.Close(); err != nil {
			r.log.Warn().Err(err).Str(logger.PeerField, s.PeerId()).Msg("Session close")
		}
		r.log.Info().Str(logger.PeerField, s.PeerId()).Str(logger.SidField, s.Sid()).Msg("Session is removed")
	}
	r.metrics.SessionsReaped.Add(float64(len(dead)))
	r.metrics.SessionsActive.Set(float64(n))
	r.metrics.QueuesExpired.Add(float64(expired))
	r.metrics.PendingQueues.Set(float64(queues))

	if !r.closed.Load() {
		r.serviceTransport(ctx)
	}
}

func (r *Router) serviceTransport(ctx context.Context) {
	if r.fault.Load() {
		if err := r.recreate(); err != nil {
			r.log.Error().Err(err).Msg("Signaling recreation")
			return
		}
	}
	t := r.getTransport()
	if t == nil || !r.conf.AutoConnect {
		return
	}
	switch t.State() {
	case signaling.StateNew, signaling.StateDisconnected:
		if err := r.connect(ctx, t); err != nil {
			r.log.Warn().Err(err).Msg("Signaling connect")
			return
		}
	case signaling.StateConnected:
	default:
		return
	}
	// the viewer offers again when its session is gone
	if r.conf.IsViewer() && r.Len() == 0 {
		if err := r.Offer(ctx); err != nil {
			r.log.Warn().Err(err).Msg("Viewer offer")
		}
	}
}

// recreate replaces the faulty transport with a new one.
func (r *Router) recreate() error {
	if old := r.setTransport(nil); old != nil {
		_ = old.Close()
	}
	t, err := r.dial(r)
	if err != nil {
		return err
	}
	r.setTransport(t)
	r.fault.Store(false)
	r.metrics.TransportRecreations.Inc()
	r.log.Info().Msg("Signaling transport is recreated")
	return nil
}

// CollectStats updates the outgoing rates of the connected sessions.
func (r *Router) CollectStats() {
	now := time.Now()
	var bitrate, packets float64
	r.ForEachConnected(func(s *session.Session) {
		if rates, ok := s.CollectStats(now); ok {
			bitrate += rates.Bitrate
			packets += rates.PacketRate
		}
	})
	r.metrics.Bitrate.Set(bitrate)
	r.metrics.PacketRate.Set(packets)
}

// Run drives the reaper, the certificate refill and the stats
// until the context is done, then closes the router.
func (r *Router) Run(ctx context.Context) {
	reap := time.NewTicker(period(r.conf.ReapPeriod, time.Second))
	defer reap.Stop()
	refill := time.NewTicker(period(r.conf.CertRefillPeriod, time.Second))
	defer refill.Stop()
	stats := time.NewTicker(period(r.conf.StatsPeriod, 5*time.Second))
	defer stats.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-reap.C:
			r.Reap(ctx)
		case <-refill.C:
			if err := r.certs.Refill(); err != nil {
				r.log.Error().Err(err).Msg("Certificate pre-generation")
			}
			r.metrics.CertPoolSize.Set(float64(r.certs.Len()))
		case <-stats.C:
			r.CollectStats()
		}
	}
}

func period(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Close terminates all sessions, reaps them and closes the transport.
func (r *Router) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.listMu.RLock()
	for _, s := range r.list {
		s.Terminate()
	}
	r.listMu.RUnlock()
	r.Reap(context.Background())
	if t := r.setTransport(nil); t != nil {
		if err := t.Close(); err != nil && !errors.Is(err, signaling.ErrNotConnected) {
			r.log.Warn().Err(err).Msg("Signaling close")
		}
	}
	r.log.Info().Msg("Router is closed")
}
