// Package session holds one negotiated peer connection and its lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/looplab/fsm"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/xid"
)

var (
	ErrDuplicateOffer       = errors.New("session: duplicate offer")
	ErrDuplicateAnswer      = errors.New("session: duplicate answer")
	ErrNoCodecMatch         = errors.New("session: no codec match")
	ErrMalformedDescription = errors.New("session: malformed description")
	ErrNoLocalOffer         = errors.New("session: answer without offer")
	ErrTooManyCandidates    = errors.New("session: too many early candidates")
	ErrNotInitialized       = errors.New("session: not initialized")
	ErrTerminated           = errors.New("session: terminated")
)

// maxEarlyCandidates bounds the candidates kept until the remote description is set.
const maxEarlyCandidates = 64

const streamId = "canary"

type Config struct {
	// one of h264, h265, vp8
	VideoCodec string
	// local trickle ICE support
	Trickle bool
	// the upper bound of the wait for local gathering when not trickling
	GatherTimeout time.Duration
	// offer side, sends and receives media
	Viewer bool
}

type Session struct {
	peerId string
	sid    string
	conf   Config
	owner  Owner
	log    *logger.Logger

	peer       Peer
	video      *webrtc.TrackLocalStaticSample
	audio      *webrtc.TrackLocalStaticSample
	videoTrans *webrtc.RTPTransceiver
	audioTrans *webrtc.RTPTransceiver

	terminate              atomic.Bool
	candidateGatheringDone atomic.Bool
	peerIdReceived         atomic.Bool
	connected              atomic.Bool
	trickle                atomic.Bool

	state      *fsm.FSM
	gathered   chan struct{}
	gatherOnce sync.Once
	closeOnce  sync.Once

	mu          sync.Mutex
	offered     bool
	remoteSet   bool
	early       []webrtc.ICECandidateInit
	negotiateAt time.Time
	history     history
}

func New(peerId string, owner Owner, conf Config, log *logger.Logger) *Session {
	s := &Session{
		peerId:   peerId,
		sid:      xid.New().String(),
		conf:     conf,
		owner:    owner,
		gathered: make(chan struct{}),
	}
	s.log = log.Peer(peerId, s.sid)
	s.state = newStateMachine(func(from, to string) {
		s.log.Debug().Msgf("state %v -> %v", from, to)
	})
	return s
}

func (s *Session) PeerId() string { return s.peerId }

// Sid is a short unique id of the session used for logs.
func (s *Session) Sid() string { return s.sid }

func (s *Session) State() string { return s.state.Current() }

func (s *Session) IsTerminated() bool { return s.terminate.Load() }

func (s *Session) IsConnected() bool { return s.connected.Load() && !s.terminate.Load() }

func (s *Session) IsGatheringDone() bool { return s.candidateGatheringDone.Load() }

// Init creates the peer connection with one video and one audio transceiver.
// On error the session should be dropped.
func (s *Session) Init(factory PeerFactory, iceServers []webrtc.ICEServer, cert *webrtc.Certificate) error {
	s.peerIdReceived.Store(true)

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: VideoMime(s.conf.VideoCodec)}, "video", streamId)
	if err != nil {
		return err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamId)
	if err != nil {
		return err
	}

	peer, err := factory.NewPeer(iceServers, cert)
	if err != nil {
		return fmt.Errorf("new peer: %w", err)
	}

	direction := webrtc.RTPTransceiverDirectionSendonly
	if s.conf.Viewer {
		direction = webrtc.RTPTransceiverDirectionSendrecv
	}
	transInit := webrtc.RTPTransceiverInit{Direction: direction}
	if s.videoTrans, err = peer.AddTransceiverFromTrack(video, transInit); err != nil {
		_ = peer.Close()
		return fmt.Errorf("video transceiver: %w", err)
	}
	if s.audioTrans, err = peer.AddTransceiverFromTrack(audio, transInit); err != nil {
		_ = peer.Close()
		return fmt.Errorf("audio transceiver: %w", err)
	}

	peer.OnICECandidate(s.onCandidate)
	peer.OnConnectionStateChange(s.onConnectionState)

	s.peer, s.video, s.audio = peer, video, audio
	return s.state.Event(context.Background(), eventInit)
}

func (s *Session) onCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		s.gatherOnce.Do(func() {
			s.candidateGatheringDone.Store(true)
			close(s.gathered)
		})
		s.log.Debug().Msg("ICE gathering is done")
		return
	}
	if s.terminate.Load() || !s.trickle.Load() {
		return
	}
	s.owner.OnCandidate(s, c.ToJSON())
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	s.log.Debug().Msgf("connection state: %v", state)
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.connected.Swap(true) {
			return
		}
		s.mu.Lock()
		punch := time.Since(s.negotiateAt)
		s.mu.Unlock()
		_ = s.state.Event(context.Background(), eventConnect)
		s.log.Info().Dur("hole_punching", punch).Msg("Connected")
		s.owner.OnConnected(s, punch)
	case webrtc.PeerConnectionStateFailed:
		_ = s.state.Event(context.Background(), eventFail)
		s.Terminate()
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		s.Terminate()
	}
}

// HandleOffer applies the remote offer and returns the local answer.
// Without trickle the answer is returned after the local gathering or
// when the wait is over.
func (s *Session) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if s.peer == nil {
		return webrtc.SessionDescription{}, ErrNotInitialized
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %v", ErrMalformedDescription, offer.Type)
	}
	desc, err := parseDescription(offer.SDP)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	if !hasVideoCodec(desc, videoCodecName(s.conf.VideoCodec)) {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrNoCodecMatch, s.conf.VideoCodec)
	}

	s.mu.Lock()
	if s.remoteSet {
		s.mu.Unlock()
		return webrtc.SessionDescription{}, ErrDuplicateOffer
	}
	if err = s.peer.SetRemoteDescription(offer); err != nil {
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	s.remoteSet = true
	s.flushEarly()
	s.trickle.Store(s.conf.Trickle && canTrickle(desc))
	s.negotiateAt = time.Now()
	_ = s.state.Event(ctx, eventNegotiate)

	answer, err := s.peer.CreateAnswer(nil)
	if err == nil {
		err = s.peer.SetLocalDescription(answer)
	}
	s.mu.Unlock()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("answer: %w", err)
	}
	return s.localDescription(ctx, answer), nil
}

// CreateOffer makes the local offer of the viewer side.
func (s *Session) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if s.peer == nil {
		return webrtc.SessionDescription{}, ErrNotInitialized
	}
	s.mu.Lock()
	if s.offered {
		s.mu.Unlock()
		return webrtc.SessionDescription{}, ErrDuplicateOffer
	}
	s.trickle.Store(s.conf.Trickle)
	offer, err := s.peer.CreateOffer(nil)
	if err == nil {
		err = s.peer.SetLocalDescription(offer)
	}
	if err != nil {
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("offer: %w", err)
	}
	s.offered = true
	s.negotiateAt = time.Now()
	_ = s.state.Event(ctx, eventNegotiate)
	s.mu.Unlock()
	return s.localDescription(ctx, offer), nil
}

// HandleAnswer applies the remote answer to the local offer.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	if s.peer == nil {
		return ErrNotInitialized
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: type %v", ErrMalformedDescription, answer.Type)
	}
	if _, err := parseDescription(answer.SDP); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.offered {
		return ErrNoLocalOffer
	}
	if s.remoteSet {
		return ErrDuplicateAnswer
	}
	if err := s.peer.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	s.remoteSet = true
	s.flushEarly()
	return nil
}

// AddCandidate applies a remote candidate or keeps it
// until the remote description is set.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) error {
	if s.peer == nil {
		return ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remoteSet {
		if len(s.early) >= maxEarlyCandidates {
			return ErrTooManyCandidates
		}
		s.early = append(s.early, c)
		return nil
	}
	return s.peer.AddICECandidate(c)
}

// flushEarly should be called under the lock.
func (s *Session) flushEarly() {
	for _, c := range s.early {
		if err := s.peer.AddICECandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("early candidate")
		}
	}
	s.early = nil
}

func (s *Session) localDescription(ctx context.Context, fallback webrtc.SessionDescription) webrtc.SessionDescription {
	if s.trickle.Load() {
		return fallback
	}
	if !s.WaitGathering(ctx, s.conf.GatherTimeout) {
		s.log.Warn().Msgf("ICE gathering is not finished in %v", s.conf.GatherTimeout)
	}
	if local := s.peer.LocalDescription(); local != nil {
		return *local
	}
	return fallback
}

// WaitGathering waits for the end of the local ICE gathering,
// no longer than the timeout.
func (s *Session) WaitGathering(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.gathered:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	return false
}

func (s *Session) WriteVideo(sample media.Sample) error { return s.write(s.video, sample) }

func (s *Session) WriteAudio(sample media.Sample) error { return s.write(s.audio, sample) }

func (s *Session) write(track *webrtc.TrackLocalStaticSample, sample media.Sample) error {
	if s.terminate.Load() {
		return ErrTerminated
	}
	if track == nil {
		return ErrNotInitialized
	}
	return track.WriteSample(sample)
}

// Terminate marks the session for removal, the teardown is done with Close.
func (s *Session) Terminate() {
	if !s.terminate.Swap(true) {
		s.log.Debug().Msg("marked for termination")
	}
}

// Close releases the peer connection. It must not be called from
// the peer connection callbacks.
func (s *Session) Close() (err error) {
	s.Terminate()
	s.closeOnce.Do(func() {
		_ = s.state.Event(context.Background(), eventTerminate)
		s.mu.Lock()
		peer := s.peer
		s.videoTrans, s.audioTrans = nil, nil
		s.early = nil
		s.mu.Unlock()
		if peer != nil {
			err = peer.Close()
		}
		s.log.Debug().Msg("closed")
	})
	return
}

func (s *Session) String() string { return s.peerId + "/" + s.sid }

// VideoMime returns the RTP mime type for the short codec name.
func VideoMime(codec string) string {
	switch strings.ToLower(codec) {
	case "vp8":
		return webrtc.MimeTypeVP8
	case "h265", "hevc":
		return "video/H265"
	}
	return webrtc.MimeTypeH264
}

func videoCodecName(codec string) string {
	return strings.TrimPrefix(VideoMime(codec), "video/")
}
