package ndn

// Provider fills outgoing piece buffers for an UploadSession. Grounded on
// upload.rs's PieceSessionProvider: the session repeatedly asks for the
// next piece; a provider that currently has nothing to send (but is not
// exhausted) is "idle" rather than erroring.
type Provider interface {
	// NextPiece writes one piece's payload into buf and returns its
	// length and chunk-relative index. n == 0 means idle: nothing to
	// send right now.
	NextPiece(buf []byte) (n int, index uint32, err error)

	// Retransmit re-queues the given indices ahead of new data, driven by
	// a Continue control frame naming lost indices (§4.3).
	Retransmit(indices []uint32)

	// Done reports whether every piece has been sent at least once and no
	// retransmit is still queued.
	Done() bool
}

// streamProvider is the PieceSessionStream provider: it hands out
// pre-split pieces in order, then replays retransmit requests.
type streamProvider struct {
	pieces  [][]byte
	cursor  int
	retransQueue []uint32
}

// NewStreamProvider builds a Provider over data already split into pieces
// (see SplitIntoPieces).
func NewStreamProvider(pieces [][]byte) Provider {
	return &streamProvider{pieces: pieces}
}

func (p *streamProvider) NextPiece(buf []byte) (int, uint32, error) {
	if len(p.retransQueue) > 0 {
		idx := p.retransQueue[0]
		p.retransQueue = p.retransQueue[1:]
		if int(idx) < len(p.pieces) {
			n := copy(buf, p.pieces[idx])
			return n, idx, nil
		}
	}
	if p.cursor >= len(p.pieces) {
		return 0, 0, nil
	}
	idx := uint32(p.cursor)
	n := copy(buf, p.pieces[p.cursor])
	p.cursor++
	return n, idx, nil
}

func (p *streamProvider) Retransmit(indices []uint32) {
	p.retransQueue = append(p.retransQueue, indices...)
}

func (p *streamProvider) Done() bool {
	return p.cursor >= len(p.pieces) && len(p.retransQueue) == 0
}
