package stream

import "time"

const (
	VideoTrack uint32 = 1
	AudioTrack uint32 = 2
)

type Flags uint8

const (
	FlagNone     Flags = 0
	FlagKeyFrame Flags = 1
)

// Frame is one encoded media unit from the producer.
type Frame struct {
	TrackID  uint32
	PTS      time.Duration
	DTS      time.Duration
	Data     []byte
	Flags    Flags
	Duration time.Duration
}

func (f *Frame) IsKey() bool { return f.Flags&FlagKeyFrame != 0 }
