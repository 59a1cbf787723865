// Package signaling defines the contract between the session router and
// the out-of-band channel used to exchange offers, answers and candidates.
package signaling

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
)

type MessageType uint8

const (
	UnknownMessage MessageType = iota
	Offer
	Answer
	IceCandidate
)

func (t MessageType) String() string {
	switch t {
	case Offer:
		return "offer"
	case Answer:
		return "answer"
	case IceCandidate:
		return "ice-candidate"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

const (
	MaxPeerIdLen   = 256
	MaxPayloadSize = 10 * 1024
)

// Message is a single signaling record.
// PeerId is the sender of inbound and the recipient of outbound messages.
type Message struct {
	Type    MessageType
	PeerId  string
	Payload string
}

var (
	ErrReconnectRequired = errors.New("signaling: reconnect required")
	ErrNotConnected      = errors.New("signaling: not connected")
	ErrMessageTooLarge   = errors.New("signaling: message is too large")
	ErrMalformedPayload  = errors.New("signaling: malformed payload")
)

// Validate checks the bounded fields of the message.
func (m Message) Validate() error {
	if len(m.PeerId) > MaxPeerIdLen || len(m.Payload) > MaxPayloadSize {
		return ErrMessageTooLarge
	}
	return nil
}

func EncodeDescription(sdp webrtc.SessionDescription) (string, error) {
	b, err := json.Marshal(sdp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeDescription(payload string) (sdp webrtc.SessionDescription, err error) {
	if err = json.Unmarshal([]byte(payload), &sdp); err != nil {
		return sdp, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if sdp.SDP == "" {
		return sdp, fmt.Errorf("%w: empty sdp", ErrMalformedPayload)
	}
	return sdp, nil
}

func EncodeCandidate(c webrtc.ICECandidateInit) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeCandidate(payload string) (c webrtc.ICECandidateInit, err error) {
	if err = json.Unmarshal([]byte(payload), &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return c, nil
}
