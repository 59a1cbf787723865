package session

import (
	"time"

	"github.com/pion/webrtc/v3"
)

// Peer is the part of *webrtc.PeerConnection used by a session.
type Peer interface {
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTransceiverFromTrack(track webrtc.TrackLocal, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	Close() error
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	GetStats() webrtc.StatsReport
	LocalDescription() *webrtc.SessionDescription
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnICECandidate(f func(*webrtc.ICECandidate))
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
}

// PeerFactory makes new peer connections.
// The cert may be nil, then the peer generates its own.
type PeerFactory interface {
	NewPeer(iceServers []webrtc.ICEServer, cert *webrtc.Certificate) (Peer, error)
}

// Owner receives the session events.
// Both methods are called from the peer connection goroutines.
type Owner interface {
	OnCandidate(s *Session, candidate webrtc.ICECandidateInit)
	OnConnected(s *Session, holePunching time.Duration)
}
