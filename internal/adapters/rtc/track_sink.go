package rtc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// TrackSink reads and discards the packets of one remote track, counting
// them as it goes.
type TrackSink struct {
	Kind string

	packets atomic.Uint64
	bytes   atomic.Uint64
	lastSeq atomic.Uint32
}

type TrackStats struct {
	Kind    string `json:"kind"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	LastSeq uint16 `json:"last_seq"`
}

func (s *TrackSink) Stats() TrackStats {
	return TrackStats{
		Kind:    s.Kind,
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		LastSeq: uint16(s.lastSeq.Load()),
	}
}

// DrainTrack drains track until it ends or ctx is done and returns the
// final counts.
func DrainTrack(ctx context.Context, track *webrtc.TrackRemote, logger *zerolog.Logger) TrackStats {
	s := &TrackSink{Kind: track.Kind().String()}
	s.Drain(ctx, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}, logger)
	return s.Stats()
}

// Drain reads packets until read fails or ctx is done.
func (s *TrackSink) Drain(ctx context.Context, read func() (*rtp.Packet, error), logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("packets", s.packets.Load()).Msg("track sink ctx done")
			return
		default:
		}
		pkt, err := read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Uint64("packets", s.packets.Load()).Msg("track ended")
			} else {
				logger.Error().Err(err).Msg("read RTP error, stopping")
			}
			return
		}
		s.account(pkt)
	}
}

func (s *TrackSink) account(pkt *rtp.Packet) {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	s.lastSeq.Store(uint32(pkt.SequenceNumber))
}
