package stream

import "time"

// outSegment is one sent-but-not-yet-acked byte range.
type outSegment struct {
	offset   uint64
	data     []byte
	fin      bool
	sendTime time.Time
}

// sendQueue tracks the unacked window for the write side, keyed by stream
// offset (§12.4: "this repository's pkg/stream adds a sendQueue"). No lock
// of its own: the owning Writer's mutex guards every call.
type sendQueue struct {
	nextOffset uint64
	ackedUpTo  uint64
	unacked    []*outSegment
	finQueued  bool
}

func newSendQueue() *sendQueue {
	return &sendQueue{}
}

// enqueue records a just-sent segment and advances nextOffset.
func (q *sendQueue) enqueue(data []byte, fin bool, sentAt time.Time) *outSegment {
	seg := &outSegment{offset: q.nextOffset, data: data, fin: fin, sendTime: sentAt}
	q.unacked = append(q.unacked, seg)
	q.nextOffset += uint64(len(data))
	if fin {
		q.finQueued = true
	}
	return seg
}

// ack releases every segment fully covered by a cumulative ack up to
// ackUpTo, the way a SessionData ACK's AckUpTo field is interpreted.
func (q *sendQueue) ack(ackUpTo uint64) (releasedBytes int) {
	if ackUpTo <= q.ackedUpTo {
		return 0
	}
	kept := q.unacked[:0]
	for _, seg := range q.unacked {
		end := seg.offset + uint64(len(seg.data))
		if end <= ackUpTo {
			releasedBytes += len(seg.data)
			continue
		}
		kept = append(kept, seg)
	}
	q.unacked = kept
	q.ackedUpTo = ackUpTo
	return releasedBytes
}

// timedOut returns the unacked segments whose sendTime is older than rto,
// i.e. candidates for retransmission on the next OnTimeEscape tick.
func (q *sendQueue) timedOut(at time.Time, rto time.Duration) []*outSegment {
	var out []*outSegment
	for _, seg := range q.unacked {
		if at.Sub(seg.sendTime) > rto {
			out = append(out, seg)
		}
	}
	return out
}

func (q *sendQueue) onAir() int {
	return len(q.unacked)
}
