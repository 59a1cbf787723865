package session

import (
	"time"

	"github.com/pion/webrtc/v3"
)

// history keeps the previous outbound counters.
type history struct {
	packets uint64
	bytes   uint64
	at      time.Time
}

// Rates are the outbound rates between two stat samples.
type Rates struct {
	Packets    uint64
	Bytes      uint64
	PacketRate float64 // packets/s
	Bitrate    float64 // bits/s
}

// CollectStats sums the outbound RTP counters of the peer and computes
// the rates against the previous sample. The first sample has no rates.
func (s *Session) CollectStats(now time.Time) (Rates, bool) {
	if s.peer == nil || s.terminate.Load() {
		return Rates{}, false
	}
	var r Rates
	for _, st := range s.peer.GetStats() {
		if out, ok := st.(webrtc.OutboundRTPStreamStats); ok {
			r.Packets += uint64(out.PacketsSent)
			r.Bytes += out.BytesSent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.history
	s.history = history{packets: r.Packets, bytes: r.Bytes, at: now}
	if prev.at.IsZero() {
		return r, false
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return r, false
	}
	if r.Packets >= prev.packets {
		r.PacketRate = float64(r.Packets-prev.packets) / dt
	}
	if r.Bytes >= prev.bytes {
		r.Bitrate = float64(r.Bytes-prev.bytes) * 8 / dt
	}
	return r, true
}
