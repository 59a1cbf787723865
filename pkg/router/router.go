// Package router dispatches signaling messages to per-peer sessions.
//
// Locking: mu guards the session table, the pending queues, the relay
// servers and every structural change of the session list. listMu guards
// the dense session list that is read by the frame producer and the
// stats collector. A list change takes mu and then listMu. Sessions are
// torn down only after they have been removed from both the table and
// the list, outside of the locks.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giongto35/rtc-canary/pkg/certpool"
	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/monitoring"
	"github.com/giongto35/rtc-canary/pkg/session"
	"github.com/giongto35/rtc-canary/pkg/signaling"
	"github.com/pion/webrtc/v3"
)

var (
	ErrUnexpectedMessage = errors.New("router: unexpected message")
	ErrUnknownPeer       = errors.New("router: unknown peer")
	ErrSessionLimit      = errors.New("router: session limit")
	ErrQueueFull         = errors.New("router: pending queue is full")
	ErrNilArgument       = errors.New("router: nil argument")
	ErrClosed            = errors.New("router: closed")
)

const relayPollPeriod = 100 * time.Millisecond

type Router struct {
	conf    config.Router
	wconf   config.Webrtc
	sconf   session.Config
	peerId  string
	dial    signaling.Dialer
	factory session.PeerFactory
	certs   *certpool.Pool
	metrics *monitoring.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	table   map[string]*session.Session
	pending *pendingQueues
	relays  []webrtc.ICEServer

	listMu sync.RWMutex
	list   []*session.Session

	tmu       sync.RWMutex
	transport signaling.Transport
	fault     atomic.Bool

	closed atomic.Bool
}

type Option func(*Router)

// WithClock replaces the clock of the pending queues.
func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

func WithMetrics(m *monitoring.Metrics) Option { return func(r *Router) { r.metrics = m } }

func WithCertPool(p *certpool.Pool) Option { return func(r *Router) { r.certs = p } }

func New(conf config.Config, dial signaling.Dialer, factory session.PeerFactory, log *logger.Logger, opts ...Option) (*Router, error) {
	if dial == nil || factory == nil || log == nil {
		return nil, ErrNilArgument
	}
	r := &Router{
		conf:    conf.Router,
		wconf:   conf.Webrtc,
		peerId:  conf.Signaling.PeerId,
		dial:    dial,
		factory: factory,
		log:     log.Mod("router"),
		now:     time.Now,
		table:   make(map[string]*session.Session),
		sconf: session.Config{
			VideoCodec:    conf.Stream.VideoCodec,
			Trickle:       conf.Webrtc.Trickle,
			GatherTimeout: conf.Webrtc.IceGatherTimeout,
			Viewer:        conf.Router.IsViewer(),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.conf.IsViewer() && r.peerId == "" {
		return nil, fmt.Errorf("%w: no master id for the viewer", ErrNilArgument)
	}
	if r.certs == nil {
		r.certs = certpool.New(r.conf.CertPoolSize, nil, r.log)
	}
	if r.metrics == nil {
		r.metrics = monitoring.NewMetrics(nil)
	}
	r.pending = newPendingQueues(r.conf.PendingTTL, r.conf.MaxPendingMessages)
	return r, nil
}

// Dispatch routes one signaling message.
func (r *Router) Dispatch(ctx context.Context, msg signaling.Message) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if r.conf.IsViewer() {
		// the master may leave the sender empty, all of it goes to the one session
		msg.PeerId = r.peerId
	}
	if msg.PeerId == "" {
		return fmt.Errorf("%w: empty peer id", ErrUnknownPeer)
	}
	switch msg.Type {
	case signaling.Offer:
		return r.handleOffer(ctx, msg)
	case signaling.Answer:
		return r.handleAnswer(msg)
	case signaling.IceCandidate:
		return r.handleCandidate(msg)
	default:
		r.log.Warn().Str(logger.PeerField, msg.PeerId).Msgf("Skip %v message", msg.Type)
		return nil
	}
}

func (r *Router) handleOffer(ctx context.Context, msg signaling.Message) error {
	if r.conf.IsViewer() {
		return fmt.Errorf("%w: offer for the viewer", ErrUnexpectedMessage)
	}
	offer, err := signaling.DecodeDescription(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrMalformedDescription, err)
	}

	r.mu.Lock()
	s := r.table[msg.PeerId]
	if s == nil {
		if s, err = r.createLocked(msg.PeerId); err != nil {
			r.mu.Unlock()
			return err
		}
		r.drainLocked(s)
	}
	r.mu.Unlock()

	answer, err := s.HandleOffer(ctx, offer)
	if err != nil {
		return err
	}
	payload, err := signaling.EncodeDescription(answer)
	if err != nil {
		return err
	}
	return r.send(ctx, signaling.Message{Type: signaling.Answer, PeerId: s.PeerId(), Payload: payload})
}

// handleAnswer gives the answer to the session of the peer or
// to the first registered one.
func (r *Router) handleAnswer(msg signaling.Message) error {
	answer, err := signaling.DecodeDescription(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrMalformedDescription, err)
	}
	r.mu.Lock()
	s := r.table[msg.PeerId]
	if s == nil {
		r.listMu.RLock()
		if len(r.list) > 0 {
			s = r.list[0]
		}
		r.listMu.RUnlock()
	}
	r.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%w: answer from %v", ErrUnknownPeer, msg.PeerId)
	}
	return s.HandleAnswer(answer)
}

func (r *Router) handleCandidate(msg signaling.Message) error {
	candidate, err := signaling.DecodeCandidate(msg.Payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.table[msg.PeerId]; s != nil {
		return s.AddCandidate(candidate)
	}
	created, err := r.pending.push(msg.PeerId, msg, r.now())
	if created {
		r.metrics.PendingQueues.Set(float64(r.pending.count()))
	}
	if err != nil {
		return err
	}
	r.metrics.CandidatesBuffered.Inc()
	return nil
}

// createLocked makes and registers a new session.
// Nothing is left in the table on error.
func (r *Router) createLocked(peerId string) (*session.Session, error) {
	if len(r.table) >= r.conf.MaxSessions {
		if r.pending.evict(peerId) {
			r.metrics.PendingQueues.Set(float64(r.pending.count()))
		}
		r.metrics.SessionsRejected.WithLabelValues("limit").Inc()
		return nil, fmt.Errorf("%w: %v sessions", ErrSessionLimit, r.conf.MaxSessions)
	}
	cert, err := r.certs.TakeOrGenerate()
	if err != nil {
		r.log.Warn().Err(err).Msg("No pre-generated certificate")
		cert = nil
	}
	r.metrics.CertPoolSize.Set(float64(r.certs.Len()))

	s := session.New(peerId, r, r.sconf, r.log)
	if err = s.Init(r.factory, r.relays, cert); err != nil {
		_ = s.Close()
		r.metrics.SessionsRejected.WithLabelValues("init").Inc()
		return nil, fmt.Errorf("session init: %w", err)
	}

	r.table[peerId] = s
	r.listMu.Lock()
	r.list = append(r.list, s)
	n := len(r.list)
	r.listMu.Unlock()

	r.metrics.SessionsCreated.Inc()
	r.metrics.SessionsActive.Set(float64(n))
	r.log.Info().Str(logger.PeerField, peerId).Str(logger.SidField, s.Sid()).Msgf("New session [%v]", n)
	return s, nil
}

// drainLocked replays the early candidates of the peer into its new session.
func (r *Router) drainLocked(s *session.Session) {
	messages := r.pending.take(s.PeerId(), r.now())
	if messages == nil {
		return
	}
	r.metrics.PendingQueues.Set(float64(r.pending.count()))
	for _, msg := range messages {
		candidate, err := signaling.DecodeCandidate(msg.Payload)
		if err == nil {
			err = s.AddCandidate(candidate)
		}
		if err != nil {
			r.log.Warn().Err(err).Str(logger.PeerField, s.PeerId()).Msg("Pending candidate")
		}
	}
	r.log.Debug().Str(logger.PeerField, s.PeerId()).Msgf("%v pending candidates", len(messages))
}

func (r *Router) send(ctx context.Context, msg signaling.Message) error {
	t := r.getTransport()
	if t == nil {
		return signaling.ErrNotConnected
	}
	return t.Send(ctx, msg)
}

func (r *Router) getTransport() signaling.Transport {
	r.tmu.RLock()
	defer r.tmu.RUnlock()
	return r.transport
}

func (r *Router) setTransport(t signaling.Transport) (old signaling.Transport) {
	r.tmu.Lock()
	defer r.tmu.Unlock()
	old, r.transport = r.transport, t
	return
}

// Session returns the registered session of the peer.
func (r *Router) Session(peerId string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table[peerId]
}

// Len returns the number of sessions in the list.
func (r *Router) Len() int {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	return len(r.list)
}

// PendingLen returns the number of buffered messages of the peer.
func (r *Router) PendingLen(peerId string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.len(peerId, r.now())
}

// PendingQueues returns the number of live pending queues.
func (r *Router) PendingQueues() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.expire(r.now())
	return r.pending.count()
}

// ForEachConnected calls fn for every connected session while holding
// the list lock. The fn must not call back into the router.
func (r *Router) ForEachConnected(fn func(s *session.Session)) {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	for _, s := range r.list {
		if s.IsConnected() {
			fn(s)
		}
	}
}

// signaling.Handler

func (r *Router) OnStateChanged(state signaling.State) {
	r.log.Info().Msgf("Signaling is %v", state)
}

func (r *Router) OnError(err error) {
	if errors.Is(err, signaling.ErrReconnectRequired) {
		r.fault.Store(true)
	}
	r.log.Error().Err(err).Msg("signaling")
}

func (r *Router) OnMessage(msg signaling.Message) {
	err := r.Dispatch(context.Background(), msg)
	if err == nil {
		return
	}
	ev := r.log.Warn()
	switch {
	case errors.Is(err, ErrSessionLimit), errors.Is(err, ErrQueueFull):
		ev = r.log.Error()
	case errors.Is(err, ErrNilArgument):
		ev = r.log.Error()
	}
	ev.Err(err).Str(logger.PeerField, msg.PeerId).Msgf("Dropped %v", msg.Type)
}

// session.Owner

func (r *Router) OnCandidate(s *session.Session, candidate webrtc.ICECandidateInit) {
	payload, err := signaling.EncodeCandidate(candidate)
	if err == nil {
		err = r.send(context.Background(), signaling.Message{Type: signaling.IceCandidate, PeerId: s.PeerId(), Payload: payload})
	}
	if err != nil {
		r.log.Warn().Err(err).Str(logger.PeerField, s.PeerId()).Msg("Local candidate")
	}
}

func (r *Router) OnConnected(_ *session.Session, holePunching time.Duration) {
	r.metrics.HolePunching.Observe(holePunching.Seconds())
}
