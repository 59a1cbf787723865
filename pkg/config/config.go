package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

const (
	RoleMaster = "master"
	RoleViewer = "viewer"
)

type Config struct {
	Debug      bool
	Webrtc     Webrtc
	Router     Router
	Signaling  Signaling
	Stream     Stream
	Monitoring Monitoring
}

type Router struct {
	// master answers many viewers, viewer offers to one master
	Role string
	// the ceiling of concurrently negotiated sessions
	MaxSessions int
	// how long unclaimed early ICE candidates are kept
	PendingTTL time.Duration
	// the max number of buffered messages per pending queue
	MaxPendingMessages int
	ReapPeriod         time.Duration
	// pre-generated DTLS certificates
	CertPoolSize     int
	CertRefillPeriod time.Duration
	StatsPeriod      time.Duration
	AutoConnect      bool
	ConnectTimeout   time.Duration
}

type Signaling struct {
	Endpoint string
	Channel  string
	ClientId string
	// the remote master id for the viewer role
	PeerId string
	// relay servers handed out along with the channel
	Relays []IceServer
}

type Stream struct {
	VideoCodec string
	AudioCodec string
	// a directory with frame-0001.h264 like files
	Source               string
	Fps                  int
	DefaultFrameDuration time.Duration
}

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool `json:"metric_enabled"`
	ProfilingEnabled bool `json:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

func (r *Router) IsViewer() bool { return r.Role == RoleViewer }

// NewConfig returns the default configuration.
func NewConfig() Config {
	return Config{
		Webrtc: Webrtc{
			IceServers:       []IceServer{{Urls: "stun:stun.l.google.com:19302"}},
			LogLevel:         int(WarnLogLevel),
			Trickle:          true,
			IceGatherTimeout: 5 * time.Second,
			IceConfigWait:    3 * time.Second,
		},
		Router: Router{
			Role:               RoleMaster,
			MaxSessions:        10,
			PendingTTL:         20 * time.Second,
			MaxPendingMessages: 64,
			ReapPeriod:         time.Second,
			CertPoolSize:       3,
			CertRefillPeriod:   time.Second,
			StatsPeriod:        5 * time.Second,
			AutoConnect:        true,
			ConnectTimeout:     10 * time.Second,
		},
		Signaling: Signaling{
			Endpoint: "ws://localhost:8000/signaling",
			Channel:  "canary",
		},
		Stream: Stream{
			VideoCodec:           "h264",
			AudioCodec:           "opus",
			Fps:                  25,
			DefaultFrameDuration: 40 * time.Millisecond,
		},
		Monitoring: Monitoring{
			Port:          6601,
			URLPrefix:     "/canary",
			MetricEnabled: true,
		},
	}
}

// WithFlags binds the command line overrides.
func (c *Config) WithFlags(fs *flag.FlagSet) *Config {
	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "Enable debug logs")
	fs.StringVar(&c.Router.Role, "role", c.Router.Role, "Session role: master or viewer")
	fs.IntVar(&c.Router.MaxSessions, "max-sessions", c.Router.MaxSessions, "Max concurrent sessions")
	fs.StringVar(&c.Signaling.Endpoint, "signaling", c.Signaling.Endpoint, "Signaling websocket endpoint")
	fs.StringVar(&c.Signaling.Channel, "channel", c.Signaling.Channel, "Signaling channel name")
	fs.StringVar(&c.Signaling.ClientId, "client-id", c.Signaling.ClientId, "Local client id (generated if empty)")
	fs.StringVar(&c.Signaling.PeerId, "peer-id", c.Signaling.PeerId, "Remote master id for the viewer role")
	fs.StringVar(&c.Stream.Source, "source", c.Stream.Source, "Directory with sample frames")
	fs.IntVar(&c.Stream.Fps, "fps", c.Stream.Fps, "Frames per second of the sample source")
	fs.BoolVarP(&c.Monitoring.MetricEnabled, "monitoring.metric", "m", c.Monitoring.MetricEnabled, "Enable prometheus metric for server")
	fs.BoolVarP(&c.Monitoring.ProfilingEnabled, "monitoring.pprof", "p", c.Monitoring.ProfilingEnabled, "Enable golang pprof for server")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	return c
}
