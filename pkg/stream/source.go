package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/nal"
)

var ErrNoFrames = errors.New("stream: no frames")

// Writer consumes the frames of a source.
type Writer interface {
	SetCodecPrivateData(cpd []byte) error
	WriteFrame(f Frame) error
}

// Source is a media producer.
type Source interface {
	Run(ctx context.Context, w Writer) error
}

func framePeriod(fps int) time.Duration {
	if fps <= 0 {
		fps = 25
	}
	return time.Second / time.Duration(fps)
}

// FileSource replays the frame-NNNN.h264 (or .h265) files
// of a directory in a loop.
type FileSource struct {
	frames [][]byte
	keys   []bool
	period time.Duration
	log    *logger.Logger
}

func NewFileSource(dir string, fps int, codec string, log *logger.Logger) (*FileSource, error) {
	c, ok := NalCodec(codec)
	if !ok {
		return nil, fmt.Errorf("stream: no file source for %v", codec)
	}
	files, err := filepath.Glob(filepath.Join(dir, "frame-*."+c.String()))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoFrames, dir)
	}
	sort.Strings(files)
	src := &FileSource{period: framePeriod(fps), log: log.Mod("source")}
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		src.frames = append(src.frames, data)
		src.keys = append(src.keys, nal.IsKeyFrame(c, data))
	}
	if len(src.frames) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoFrames, dir)
	}
	src.log.Info().Msgf("%v frames from %v", len(src.frames), dir)
	return src, nil
}

func (s *FileSource) Len() int { return len(s.frames) }

func (s *FileSource) Run(ctx context.Context, w Writer) error {
	return loop(ctx, s.period, func(i int, pts time.Duration) {
		n := i % len(s.frames)
		f := Frame{TrackID: VideoTrack, PTS: pts, DTS: pts, Data: s.frames[n], Duration: s.period}
		if s.keys[n] {
			f.Flags = FlagKeyFrame
		}
		if err := w.WriteFrame(f); err != nil {
			s.log.Debug().Err(err).Msgf("frame %v", n)
		}
	})
}

// SyntheticSource makes a length-prefixed H.264 stream with an IDR
// every gop frames. The payloads are not decodable, only the framing
// is real.
type SyntheticSource struct {
	period time.Duration
	gop    int
	size   int
	log    *logger.Logger
}

func NewSyntheticSource(fps int, log *logger.Logger) *SyntheticSource {
	if fps <= 0 {
		fps = 25
	}
	return &SyntheticSource{period: framePeriod(fps), gop: 2 * fps, size: 1200, log: log.Mod("source")}
}

var (
	syntheticSps = []byte{0x67, 0x42, 0x00, 0x1f, 0xe9, 0x02, 0xc1, 0x2c, 0x80}
	syntheticPps = []byte{0x68, 0xce, 0x06, 0xe2}
)

// SyntheticCpd is the avcC record of the synthetic stream.
func SyntheticCpd() []byte {
	b := []byte{1, syntheticSps[1], syntheticSps[2], syntheticSps[3], 0xff, 0xe1}
	b = binary.BigEndian.AppendUint16(b, uint16(len(syntheticSps)))
	b = append(b, syntheticSps...)
	b = append(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(syntheticPps)))
	return append(b, syntheticPps...)
}

func (s *SyntheticSource) frame(i int) ([]byte, bool) {
	key := i%s.gop == 0
	header := byte(0x41)
	if key {
		header = 0x65
	}
	data := binary.BigEndian.AppendUint32(make([]byte, 0, s.size+4), uint32(s.size))
	data = append(data, header)
	for j := 1; j < s.size; j++ {
		data = append(data, byte(i+j))
	}
	return data, key
}

func (s *SyntheticSource) Run(ctx context.Context, w Writer) error {
	if err := w.SetCodecPrivateData(SyntheticCpd()); err != nil {
		return err
	}
	return loop(ctx, s.period, func(i int, pts time.Duration) {
		data, key := s.frame(i)
		f := Frame{TrackID: VideoTrack, PTS: pts, DTS: pts, Data: data}
		if key {
			f.Flags = FlagKeyFrame
		}
		if err := w.WriteFrame(f); err != nil {
			s.log.Debug().Err(err).Msgf("frame %v", i)
		}
	})
}

func loop(ctx context.Context, period time.Duration, fn func(i int, pts time.Duration)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for i := 0; ; i++ {
		fn(i, time.Duration(i)*period)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
