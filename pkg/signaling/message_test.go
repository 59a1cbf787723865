package signaling

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestDescriptionCodec(t *testing.T) {
	in := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	payload, err := EncodeDescription(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeDescription(payload)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.SDP != in.SDP {
		t.Errorf("%v != %v", out, in)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []string{"", "{", `{"type":"offer"}`}
	for _, payload := range tests {
		if _, err := DecodeDescription(payload); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("payload %q gave %v", payload, err)
		}
	}
	if _, err := DecodeCandidate("[1,2"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("broken candidate gave %v", err)
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		msg Message
		err error
	}{
		{msg: Message{Type: Offer, PeerId: "abc", Payload: "{}"}},
		{msg: Message{PeerId: strings.Repeat("x", MaxPeerIdLen+1)}, err: ErrMessageTooLarge},
		{msg: Message{Payload: strings.Repeat("x", MaxPayloadSize+1)}, err: ErrMessageTooLarge},
	}
	for _, test := range tests {
		if err := test.msg.Validate(); !errors.Is(err, test.err) {
			t.Errorf("unexpected %v, want %v", err, test.err)
		}
	}
}
