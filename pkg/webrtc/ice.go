package webrtc

import (
	"strings"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/pion/webrtc/v3"
)

type Replacement struct {
	From string
	To   string
}

// ToIceServers converts the configured servers, {name} placeholders
// in the urls are substituted with the replacements.
func ToIceServers(servers []config.IceServer, replacements ...Replacement) []webrtc.ICEServer {
	result := make([]webrtc.ICEServer, 0, len(servers))
	for _, ice := range servers {
		url := ice.Urls
		for _, r := range replacements {
			url = strings.ReplaceAll(url, "{"+r.From+"}", r.To)
		}
		server := webrtc.ICEServer{URLs: []string{url}, Username: ice.Username}
		if ice.Credential != "" {
			server.Credential = ice.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		result = append(result, server)
	}
	return result
}
