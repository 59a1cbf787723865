// Package sessiontest provides in-memory peers for session and router tests.
package sessiontest

import (
	"errors"
	"strings"
	"sync"

	"github.com/giongto35/rtc-canary/pkg/session"
	"github.com/pion/webrtc/v3"
)

// Peer records every call made by a session.
type Peer struct {
	mu         sync.Mutex
	remote     *webrtc.SessionDescription
	local      *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	closed     bool

	onCandidate func(*webrtc.ICECandidate)
	onState     func(webrtc.PeerConnectionState)

	// Stats is returned by GetStats.
	Stats webrtc.StatsReport
	// RemoteErr fails SetRemoteDescription.
	RemoteErr error
	// GatherOnLocal ends the gathering right after SetLocalDescription.
	GatherOnLocal bool
}

var ErrClosed = errors.New("sessiontest: peer is closed")

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *Peer) AddTransceiverFromTrack(track webrtc.TrackLocal, _ ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Peer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: Description(true, "H264")}, nil
}

func (p *Peer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: Description(true, "H264")}, nil
}

func (p *Peer) GetStats() webrtc.StatsReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stats
}

func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *Peer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = f
	p.mu.Unlock()
}

func (p *Peer) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.local = &desc
	gather := p.GatherOnLocal
	p.mu.Unlock()
	if gather {
		p.Gather(nil)
	}
	return nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RemoteErr != nil {
		return p.RemoteErr
	}
	p.remote = &desc
	return nil
}

// Gather emits a local candidate, nil ends the gathering.
func (p *Peer) Gather(c *webrtc.ICECandidate) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// SetState emits a connection state change.
func (p *Peer) SetState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	if f != nil {
		f(state)
	}
}

// Candidates returns the remote candidates applied to the peer.
func (p *Peer) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *Peer) Remote() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *Peer) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

func (p *Peer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Factory makes fake peers and remembers them.
type Factory struct {
	mu    sync.Mutex
	peers []*Peer
	certs []*webrtc.Certificate

	// Err fails NewPeer.
	Err error
	// Setup is applied to every new peer.
	Setup func(p *Peer)
}

func (f *Factory) NewPeer(_ []webrtc.ICEServer, cert *webrtc.Certificate) (session.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := &Peer{}
	if f.Setup != nil {
		f.Setup(p)
	}
	f.peers = append(f.peers, p)
	f.certs = append(f.certs, cert)
	return p, nil
}

func (f *Factory) Peers() []*Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Peer(nil), f.peers...)
}

func (f *Factory) Last() *Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func (f *Factory) Certs() []*webrtc.Certificate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*webrtc.Certificate(nil), f.certs...)
}

// Description makes a minimal SDP with one video section.
func Description(trickle bool, codec string) string {
	lines := []string{
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0",
	}
	if trickle {
		lines = append(lines, "a=ice-options:trickle")
	}
	lines = append(lines,
		"m=video 9 UDP/TLS/RTP/SAVPF 102",
		"c=IN IP4 0.0.0.0",
		"a=mid:0",
		"a=rtpmap:102 "+codec+"/90000",
	)
	return strings.Join(lines, "\r\n") + "\r\n"
}

// Offer is a remote offer for the codec.
func Offer(trickle bool, codec string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: Description(trickle, codec)}
}

func Candidate(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: "candidate:" + strings.Repeat("x", n)}
}
