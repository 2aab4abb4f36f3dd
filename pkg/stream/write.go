package stream

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/constants"
	"github.com/WebFirstLanguage/beenet/pkg/ndn"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// fallbackRTO is used when a Writer has no CongestionControl wired in.
const fallbackRTO = constants.NDNMinRTO

// Sender is the subset of a stream-carrying channel a Writer needs to emit
// frames, kept narrow the way ndn.FrameSender is (§4.6 write side).
type Sender interface {
	From() string
	NextSeq() uint64
	SendSessionData(f *wire.BaseFrame) error
}

// Writer is the send half of a StreamTransport stream (§12.4). The write
// side is symmetric with ReadProvider: every outgoing packet piggybacks
// the read side's current ack position via TouchAck, which is also how it
// clears the read side's Nagle timer.
type Writer struct {
	mu sync.Mutex

	streamID uint32
	sender   Sender
	read     *ReadProvider
	cc       ndn.CongestionControl
	cfg      Config

	queue  *sendQueue
	closed bool
}

// NewWriter builds a Writer paired with the stream's ReadProvider. cc may
// be nil, in which case retransmit timing falls back to fallbackRTO.
func NewWriter(streamID uint32, sender Sender, read *ReadProvider, cc ndn.CongestionControl, cfg Config) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		streamID: streamID,
		sender:   sender,
		read:     read,
		cc:       cc,
		cfg:      cfg,
		queue:    newSendQueue(),
	}
}

// Write chunks buf into MSS-sized SessionData packets (§12.4).
func (w *Writer) Write(buf []byte) (int, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return 0, ndnerr.New(ndnerr.CodeErrorState, "stream closed for writing")
	}

	sent := 0
	for sent < len(buf) {
		end := sent + w.cfg.MSS
		if end > len(buf) {
			end = len(buf)
		}
		if err := w.sendSegment(buf[sent:end], false); err != nil {
			return sent, err
		}
		sent = end
	}
	return sent, nil
}

// Close sends a FIN segment exactly once (I-6's send-side counterpart).
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.sendSegment(nil, true)
}

func (w *Writer) sendSegment(data []byte, fin bool) error {
	ackUpTo, _ := w.read.TouchAck()

	w.mu.Lock()
	seg := w.queue.enqueue(data, fin, now())
	w.mu.Unlock()

	frame := wire.NewSessionDataFrame(w.sender.From(), w.sender.NextSeq(), w.streamID, seg.offset, data, fin)
	body := frame.Body.(*wire.SessionDataBody)
	body.Ack = true
	body.AckUpTo = ackUpTo
	return w.sender.SendSessionData(frame)
}

// SendStandaloneAck emits an ACK-only packet, used when the read side's
// Nagle timer expires with nothing else queued to ride it on.
func (w *Writer) SendStandaloneAck(ackUpTo uint64) error {
	frame := wire.NewSessionAckFrame(w.sender.From(), w.sender.NextSeq(), w.streamID, ackUpTo)
	return w.sender.SendSessionData(frame)
}

// OnAck applies a cumulative ack, releasing unacked segments and feeding
// the RTT sample through to congestion control (§4.4's RespEstimate
// handling, reused here for the stream's own ack stream).
func (w *Writer) OnAck(ackUpTo uint64, at time.Time) {
	w.mu.Lock()
	before := w.queue.onAir()
	var oldest time.Time
	if before > 0 {
		oldest = w.queue.unacked[0].sendTime
	}
	released := w.queue.ack(ackUpTo)
	after := w.queue.onAir()
	w.mu.Unlock()

	if released > 0 && w.cc != nil && !oldest.IsZero() {
		w.cc.OnEstimate(at.Sub(oldest), 0)
		w.cc.OnAck(uint64(after), uint64(before-after), at)
	}
}

// OnTimeEscape resends any segment that has sat unacked past the current
// RTO estimate (§12.4, reusing §4.4's congestion-control interface).
func (w *Writer) OnTimeEscape(t time.Time) {
	rto := fallbackRTO
	if w.cc != nil {
		rto = w.cc.RTO()
	}

	w.mu.Lock()
	segs := w.queue.timedOut(t, rto)
	w.mu.Unlock()
	if len(segs) == 0 {
		return
	}

	ackUpTo, _ := w.read.TouchAck()
	for _, seg := range segs {
		w.mu.Lock()
		seg.sendTime = t
		w.mu.Unlock()

		frame := wire.NewSessionDataFrame(w.sender.From(), w.sender.NextSeq(), w.streamID, seg.offset, seg.data, seg.fin)
		body := frame.Body.(*wire.SessionDataBody)
		body.Ack = true
		body.AckUpTo = ackUpTo
		w.sender.SendSessionData(frame)
		if w.cc != nil {
			w.cc.OnLoss(1)
		}
	}
}

// OnAir reports how many segments are sent but not yet acked.
func (w *Writer) OnAir() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.onAir()
}
