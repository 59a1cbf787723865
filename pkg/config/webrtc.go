package config

import "time"

type Webrtc struct {
	DisableDefaultInterceptors bool
	DtlsRole                   byte
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap   string
	IceLite    bool
	SinglePort int
	LogLevel   int
	// send local candidates as soon as they are gathered
	Trickle bool
	// the upper bound of the non-trickle gathering wait
	IceGatherTimeout time.Duration
	// the upper bound of the relay servers' config polling
	IceConfigWait time.Duration
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// PionLogLevel mirrors zerolog levels for the pion logger.
type PionLogLevel int

const (
	TraceLogLevel PionLogLevel = iota - 1
	DebugLogLevel
	InfoLogLevel
	WarnLogLevel
	ErrorLogLevel
)

func (w *Webrtc) HasDtlsRole() bool   { return w.DtlsRole > 0 }
func (w *Webrtc) HasPortRange() bool  { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasSinglePort() bool { return w.SinglePort > 0 }
func (w *Webrtc) HasIceIpMap() bool   { return w.IceIpMap != "" }
