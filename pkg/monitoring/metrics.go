package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "canary"

// Metrics of the router and the stream.
type Metrics struct {
	SessionsActive       prometheus.Gauge
	SessionsCreated      prometheus.Counter
	SessionsRejected     *prometheus.CounterVec
	SessionsReaped       prometheus.Counter
	PendingQueues        prometheus.Gauge
	CandidatesBuffered   prometheus.Counter
	QueuesExpired        prometheus.Counter
	FramesSent           *prometheus.CounterVec
	FramesDropped        *prometheus.CounterVec
	CertPoolSize         prometheus.Gauge
	TransportRecreations prometheus.Counter
	HolePunching         prometheus.Histogram
	Bitrate              prometheus.Gauge
	PacketRate           prometheus.Gauge
}

// NewMetrics registers the metrics with reg, a nil reg keeps them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active", Help: "The number of live sessions.",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_created_total", Help: "The number of created sessions.",
		}),
		SessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_rejected_total", Help: "The number of rejected session requests.",
		}, []string{"reason"}),
		SessionsReaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_reaped_total", Help: "The number of removed terminated sessions.",
		}),
		PendingQueues: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_queues", Help: "The number of queues with early candidates.",
		}),
		CandidatesBuffered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_buffered_total", Help: "The number of candidates received before their session.",
		}),
		QueuesExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pending_queues_expired_total", Help: "The number of unclaimed pending queues.",
		}),
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sent_total", Help: "The number of frames written to sessions.",
		}, []string{"track"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total", Help: "The number of dropped frames.",
		}, []string{"reason"}),
		CertPoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "certificate_pool_size", Help: "The number of pre-generated certificates.",
		}),
		TransportRecreations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transport_recreations_total", Help: "The number of signaling transport restarts.",
		}),
		HolePunching: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "hole_punching_seconds", Help: "The time from the negotiation to the connection.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}),
		Bitrate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outgoing_bitrate_bps", Help: "The outgoing bitrate of all sessions.",
		}),
		PacketRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outgoing_packet_rate", Help: "The outgoing packets per second of all sessions.",
		}),
	}
}
