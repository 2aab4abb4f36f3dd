package stream

// recvQueue reassembles an ordered byte stream out of possibly-reordered,
// possibly-duplicate offset-tagged segments. It has no lock of its own: the
// owning ReadProvider's mutex guards every call, the way the original's
// RecvQueue is only ever touched from inside ReadProviderImpl's lock.
type recvQueue struct {
	ready      []byte
	consumed   uint64
	nextOffset uint64
	pending    map[uint64][]byte
	finOffset  *uint64
}

func newRecvQueue() *recvQueue {
	return &recvQueue{pending: make(map[uint64][]byte)}
}

// push records one segment. It returns the number of newly-contiguous bytes
// this call added to the ready buffer, and whether the stream's end (a FIN
// at or before the now-contiguous offset) has been observed.
func (q *recvQueue) push(offset uint64, data []byte, fin bool) (confirmed int, gotFin bool) {
	if fin {
		end := offset + uint64(len(data))
		if q.finOffset == nil || end > *q.finOffset {
			q.finOffset = &end
		}
	}

	before := len(q.ready)
	switch {
	case offset == q.nextOffset:
		q.ready = append(q.ready, data...)
		q.nextOffset += uint64(len(data))
		q.drainPending()
	case offset > q.nextOffset:
		if _, exists := q.pending[offset]; !exists {
			buf := make([]byte, len(data))
			copy(buf, data)
			q.pending[offset] = buf
		}
	default:
		// offset < nextOffset: stale retransmit of already-delivered bytes,
		// idempotent no-op (I-6's duplicate-FIN case folds in here too).
	}

	confirmed = len(q.ready) - before
	gotFin = q.finOffset != nil && q.nextOffset >= *q.finOffset
	return
}

func (q *recvQueue) drainPending() {
	for {
		seg, ok := q.pending[q.nextOffset]
		if !ok {
			return
		}
		delete(q.pending, q.nextOffset)
		q.ready = append(q.ready, seg...)
		q.nextOffset += uint64(len(seg))
	}
}

// streamLen is the number of contiguous, unread bytes ready for the reader.
func (q *recvQueue) streamLen() int {
	return len(q.ready)
}

// streamEnd is the offset one past the last contiguous byte ever pushed,
// i.e. the value a Closed provider reports as last_ack_offset (I-5).
func (q *recvQueue) streamEnd() uint64 {
	return q.nextOffset
}

// read drains up to len(buf) ready bytes into buf.
func (q *recvQueue) read(buf []byte) int {
	n := copy(buf, q.ready)
	q.ready = q.ready[n:]
	q.consumed += uint64(n)
	return n
}
