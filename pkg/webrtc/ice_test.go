package webrtc

import (
	"reflect"
	"testing"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/pion/webrtc/v3"
)

func TestIce(t *testing.T) {
	tests := []struct {
		input        []config.IceServer
		replacements []Replacement
		output       []webrtc.ICEServer
	}{
		{
			input: []config.IceServer{
				{Urls: "stun:stun.l.google.com:19302"},
				{Urls: "stun:{server-ip}:3478"},
				{Urls: "turn:{server-ip}:3478", Username: "root", Credential: "root"},
			},
			replacements: []Replacement{{From: "server-ip", To: "localhost"}},
			output: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
				{URLs: []string{"stun:localhost:3478"}},
				{URLs: []string{"turn:localhost:3478"}, Username: "root", Credential: "root", CredentialType: webrtc.ICECredentialTypePassword},
			},
		},
		{
			input:  nil,
			output: []webrtc.ICEServer{},
		},
	}

	for _, test := range tests {
		result := ToIceServers(test.input, test.replacements...)
		if !reflect.DeepEqual(result, test.output) {
			t.Errorf("Not exactly what is expected, %v", result)
		}
	}
}
