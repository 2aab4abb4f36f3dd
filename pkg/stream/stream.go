package stream

import (
	"context"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/ndn"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// Stream is one bidirectional StreamTransport connection: a ReadProvider
// for the incoming half and a Writer for the outgoing half, sharing one
// stream id and one underlying Sender (§4.6, §12.4).
type Stream struct {
	id    uint32
	read  *ReadProvider
	write *Writer
}

// NewStream builds a Stream. cc may be nil for a stream that doesn't need
// congestion-aware retransmit (e.g. a loopback test double).
func NewStream(id uint32, sender Sender, cc ndn.CongestionControl, cfg Config) *Stream {
	read := NewReadProvider(cfg)
	write := NewWriter(id, sender, read, cc, cfg)
	return &Stream{id: id, read: read, write: write}
}

// Read blocks until data, EOF, or ctx is done (§4.6).
func (s *Stream) Read(ctx context.Context, buf []byte) (int, error) {
	return s.read.Read(ctx, buf)
}

// Readable blocks until data is available to Read without blocking.
func (s *Stream) Readable(ctx context.Context) (int, error) {
	return s.read.Readable(ctx)
}

// Write sends buf as one or more SessionData packets.
func (s *Stream) Write(buf []byte) (int, error) {
	return s.write.Write(buf)
}

// Close half-closes the write side by sending a FIN.
func (s *Stream) Close() error {
	return s.write.Close()
}

// BreakWithError forces the read side closed with an error, for callers
// that detect the underlying tunnel has died.
func (s *Stream) BreakWithError(err error) {
	s.read.BreakWithError(err)
}

// OnSessionData feeds one incoming SessionData frame into the stream: a
// payload/FIN segment into the read side, or a bare ACK into the write
// side's unacked-segment bookkeeping, per the frame's flags (§4.6, §12.4).
func (s *Stream) OnSessionData(body *wire.SessionDataBody) {
	if body.Ack {
		s.write.OnAck(body.AckUpTo, now())
	}
	if body.Ack && len(body.Data) == 0 && !body.Fin {
		return // ack-only packet, nothing for the read side to reassemble
	}

	_, shouldAck := s.read.Push(body.Offset, body.Data, body.Fin)
	if shouldAck {
		// §4.6 step 3's batch-coalescing is moot here: this Stream emits
		// one frame per call rather than batching outgoing frames, so
		// there is no pending-batch tail to check for an existing ACK.
		ackUpTo, _ := s.read.TouchAck()
		s.write.SendStandaloneAck(ackUpTo)
	}
}

// OnTimeEscape drives both halves' periodic bookkeeping: the read side's
// Nagle-timeout ACK and close-waiting transition, and the write side's
// RTO-based retransmit scan.
func (s *Stream) OnTimeEscape(t time.Time) {
	ackNeeded, err := s.read.OnTimeEscape(t)
	if err == nil && ackNeeded {
		ackUpTo, _ := s.read.TouchAck()
		s.write.SendStandaloneAck(ackUpTo)
	}
	s.write.OnTimeEscape(t)
}

// ID returns the stream's wire-level stream id.
func (s *Stream) ID() uint32 {
	return s.id
}
