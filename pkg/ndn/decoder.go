package ndn

import (
	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// PieceSize is the payload size of one stream-encoded piece; the final
// piece of a chunk may be shorter.
const PieceSize = 16 * 1024

// Decoder reassembles a chunk from a stream of pieces, keyed by index.
// Grounded on download.rs's decoder contract: push returns whether the
// piece was new/valid and whether the chunk is now complete;
// RequireIndex exposes (max_index, lost_index) for the Continue control
// frame (§4.2).
type Decoder interface {
	// Push records one piece. valid is true unless index is out of range
	// for this chunk (an idempotent no-op per I-duplicate-pieces).
	// finished is true once every piece up to the chunk's last index has
	// arrived.
	Push(index uint32, data []byte) (valid bool, finished bool)

	// RequireIndex reports the highest index seen so far and the indices
	// below it that are still missing, for a Continue control frame.
	RequireIndex() (maxIndex uint32, lostIndex []uint32)

	// Bytes returns the reassembled chunk once finished is true.
	Bytes() []byte
}

// streamDecoder implements Decoder for PieceSessionStream: the chunk is
// split into fixed-size, sequentially-indexed pieces.
type streamDecoder struct {
	chunk    chunkid.ChunkId
	pieces   [][]byte
	received []bool
	count    int
	total    int
}

// NewStreamDecoder builds a Decoder for a stream-encoded chunk transfer.
func NewStreamDecoder(chunk chunkid.ChunkId) Decoder {
	total := 1
	if chunk.Length > 0 {
		total = int((chunk.Length + PieceSize - 1) / PieceSize)
	}
	return &streamDecoder{
		chunk:    chunk,
		pieces:   make([][]byte, total),
		received: make([]bool, total),
		total:    total,
	}
}

func (d *streamDecoder) Push(index uint32, data []byte) (bool, bool) {
	if int(index) >= d.total {
		return false, d.isFinished()
	}
	if d.received[index] {
		return true, d.isFinished() // idempotent duplicate
	}
	d.pieces[index] = data
	d.received[index] = true
	d.count++
	return true, d.isFinished()
}

func (d *streamDecoder) isFinished() bool {
	return d.count == d.total
}

func (d *streamDecoder) RequireIndex() (uint32, []uint32) {
	max := uint32(0)
	var lost []uint32
	for i, got := range d.received {
		if got {
			max = uint32(i)
		}
	}
	for i := 0; i < int(max); i++ {
		if !d.received[i] {
			lost = append(lost, uint32(i))
		}
	}
	return max, lost
}

func (d *streamDecoder) Bytes() []byte {
	out := make([]byte, 0, d.chunk.Length)
	for _, p := range d.pieces {
		out = append(out, p...)
	}
	return out
}

// SplitIntoPieces slices data into PieceSize-bounded pieces for an upload
// provider to hand out sequentially.
func SplitIntoPieces(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var pieces [][]byte
	for off := 0; off < len(data); off += PieceSize {
		end := off + PieceSize
		if end > len(data) {
			end = len(data)
		}
		pieces = append(pieces, data[off:end])
	}
	return pieces
}

// pieceSessionTypeOf adapts the wire enum for readability at call sites.
func pieceSessionTypeOf(v uint8) wire.PieceSessionType {
	return wire.PieceSessionType(v)
}
