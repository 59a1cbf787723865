// Package webrtc builds pion peer connections for sessions.
package webrtc

import (
	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/network/socket"
	"github.com/giongto35/rtc-canary/pkg/session"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

type ApiFactory struct {
	api     *webrtc.API
	servers []webrtc.ICEServer
	closers []func() error
}

type ModApiFun func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &webrtc.MediaEngine{}
	if err = RegisterCodecs(m); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasDtlsRole() {
		if err = s.SetAnsweringDTLSRole(webrtc.DTLSRole(conf.DtlsRole)); err != nil {
			return
		}
	}
	if conf.IceLite {
		s.SetLite(true)
	}
	if conf.HasPortRange() {
		if err = s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return
		}
	}
	api = &ApiFactory{servers: ToIceServers(conf.IceServers)}
	if conf.HasSinglePort() {
		udp, err := socket.ListenUDPRoll(conf.SinglePort)
		if err != nil {
			return nil, err
		}
		s.SetICEUDPMux(webrtc.NewICEUDPMux(customLogger, udp))
		api.closers = append(api.closers, udp.Close)
		log.Info().Msgf("The single port mode is active for %s", udp.LocalAddr())
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, webrtc.ICECandidateTypeHost)
		log.Info().Msgf("The NAT mapping is active for %v", conf.IceIpMap)
	}

	if mod != nil {
		mod(m, i, &s)
	}

	api.api = webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s))
	return api, nil
}

// NewPeer makes a peer connection with the static ICE servers plus
// the given ones. A nil cert lets pion generate a new one.
func (a *ApiFactory) NewPeer(iceServers []webrtc.ICEServer, cert *webrtc.Certificate) (session.Peer, error) {
	conf := webrtc.Configuration{ICEServers: append(append([]webrtc.ICEServer{}, a.servers...), iceServers...)}
	if cert != nil {
		conf.Certificates = []webrtc.Certificate{*cert}
	}
	pc, err := a.api.NewPeerConnection(conf)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// Close releases the shared sockets.
func (a *ApiFactory) Close() (err error) {
	for _, c := range a.closers {
		if e := c(); e != nil {
			err = e
		}
	}
	a.closers = nil
	return
}
