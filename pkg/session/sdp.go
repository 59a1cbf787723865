package session

import (
	"errors"
	"strings"

	"github.com/pion/sdp/v3"
)

var (
	errNoMedia  = errors.New("no media sections")
	errNoOrigin = errors.New("no origin")
)

// parseDescription reads the remote SDP. The parser skips unknown
// lines, so a description without an origin or media is rejected here.
func parseDescription(raw string) (*sdp.SessionDescription, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, err
	}
	if desc.Origin.SessionID == 0 && desc.Origin.UnicastAddress == "" {
		return nil, errNoOrigin
	}
	if len(desc.MediaDescriptions) == 0 {
		return nil, errNoMedia
	}
	return &desc, nil
}

// canTrickle checks the ice-options attribute on the session or on any media level.
func canTrickle(desc *sdp.SessionDescription) bool {
	if v, ok := desc.Attribute("ice-options"); ok && hasOption(v, "trickle") {
		return true
	}
	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("ice-options"); ok && hasOption(v, "trickle") {
			return true
		}
	}
	return false
}

func hasOption(value, option string) bool {
	for _, o := range strings.Fields(value) {
		if o == option {
			return true
		}
	}
	return false
}

// hasVideoCodec looks for the codec name, i.e. H264, in the video rtpmaps.
func hasVideoCodec(desc *sdp.SessionDescription, codec string) bool {
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media != "video" {
			continue
		}
		for _, a := range m.Attributes {
			if a.Key != "rtpmap" {
				continue
			}
			// 102 H264/90000
			fields := strings.Fields(a.Value)
			if len(fields) < 2 {
				continue
			}
			name := strings.SplitN(fields[1], "/", 2)[0]
			if strings.EqualFold(name, codec) {
				return true
			}
		}
	}
	return false
}
