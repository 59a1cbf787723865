package session

import (
	"strings"
	"testing"
)

func sdpLines(lines ...string) string { return strings.Join(lines, "\r\n") + "\r\n" }

func TestParseDescription(t *testing.T) {
	video := sdpLines(
		"v=0",
		"o=- 42 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=video 9 UDP/TLS/RTP/SAVPF 102",
		"a=rtpmap:102 H264/90000",
	)
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "video", raw: video, ok: true},
		{name: "garbage", raw: "garbage"},
		{name: "empty", raw: ""},
		{name: "no media", raw: sdpLines("v=0", "o=- 42 2 IN IP4 127.0.0.1", "s=-", "t=0 0")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			desc, err := parseDescription(test.raw)
			if test.ok != (err == nil) {
				t.Fatalf("unexpected result %v", err)
			}
			if test.ok && !hasVideoCodec(desc, "H264") {
				t.Errorf("no H264 in the video section")
			}
		})
	}
}
