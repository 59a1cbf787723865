// Package stream fans the encoded frames out to the connected sessions.
package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/monitoring"
	"github.com/giongto35/rtc-canary/pkg/nal"
	"github.com/giongto35/rtc-canary/pkg/session"
	"github.com/pion/webrtc/v3/pkg/media"
)

var (
	ErrUnknownTrack = errors.New("stream: unknown track")
	ErrEmptyFrame   = errors.New("stream: empty frame")
)

// Sessions is the part of the router used for the fan-out.
type Sessions interface {
	ForEachConnected(fn func(s *session.Session))
}

type Stream struct {
	sessions        Sessions
	defaultDuration time.Duration
	metrics         *monitoring.Metrics
	log             *logger.Logger

	// guards the adapter and its output buffer
	mu      sync.Mutex
	adapter *nal.Adapter
}

func New(conf config.Stream, sessions Sessions, metrics *monitoring.Metrics, log *logger.Logger) (*Stream, error) {
	if sessions == nil {
		return nil, fmt.Errorf("stream: %w", nal.ErrNilArgument)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	s := &Stream{
		sessions:        sessions,
		defaultDuration: conf.DefaultFrameDuration,
		metrics:         metrics,
		log:             log.Mod("stream"),
	}
	if s.defaultDuration <= 0 {
		s.defaultDuration = 40 * time.Millisecond
	}
	if codec, ok := NalCodec(conf.VideoCodec); ok {
		s.adapter = nal.NewAdapter(codec)
	}
	return s, nil
}

// NalCodec maps the video codec name, codecs without NAL units give false.
func NalCodec(name string) (nal.Codec, bool) {
	switch strings.ToLower(name) {
	case "h264", "avc", "":
		return nal.H264, true
	case "h265", "hevc":
		return nal.H265, true
	}
	return nal.H264, false
}

// SetCodecPrivateData updates the parameter sets prepended to key frames.
// A malformed blob is dropped and the previous one is kept.
func (s *Stream) SetCodecPrivateData(cpd []byte) error {
	if s.adapter == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adapter.SetCodecPrivateData(cpd); err != nil {
		s.metrics.FramesDropped.WithLabelValues("cpd").Inc()
		s.log.Warn().Err(err).Msg("Codec private data is dropped")
		return err
	}
	return nil
}

// WriteFrame sends the frame to every connected session.
// A frame with a format error is dropped.
func (s *Stream) WriteFrame(f Frame) error {
	if len(f.Data) == 0 {
		return ErrEmptyFrame
	}
	s.normalize(&f)
	switch f.TrackID {
	case VideoTrack:
		return s.writeVideo(f)
	case AudioTrack:
		s.fanOut("audio", media.Sample{Data: f.Data, Duration: f.Duration}, (*session.Session).WriteAudio)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnknownTrack, f.TrackID)
}

// normalize replaces zero durations, the receivers choke on them.
func (s *Stream) normalize(f *Frame) {
	if f.Duration <= 0 {
		f.Duration = s.defaultDuration
	}
}

func (s *Stream) writeVideo(f Frame) error {
	if s.adapter == nil {
		s.fanOut("video", media.Sample{Data: f.Data, Duration: f.Duration}, (*session.Session).WriteVideo)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.adapter.AdaptFrame(f.Data, f.IsKey())
	if err != nil {
		s.metrics.FramesDropped.WithLabelValues("format").Inc()
		s.log.Warn().Err(err).Dur("pts", f.PTS).Msg("Frame is dropped")
		return err
	}
	s.fanOut("video", media.Sample{Data: data, Duration: f.Duration}, (*session.Session).WriteVideo)
	return nil
}

func (s *Stream) fanOut(track string, sample media.Sample, write func(*session.Session, media.Sample) error) {
	s.sessions.ForEachConnected(func(ss *session.Session) {
		if err := write(ss, sample); err != nil {
			s.metrics.FramesDropped.WithLabelValues("session").Inc()
			s.log.Debug().Err(err).Str(logger.PeerField, ss.PeerId()).Msg("write")
			return
		}
		s.metrics.FramesSent.WithLabelValues(track).Inc()
	})
}
