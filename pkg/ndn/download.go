package ndn

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// DownloadState is DownloadSession's FSM state (§4.2).
type DownloadState int

const (
	DownloadInteresting DownloadState = iota
	DownloadDownloading
	DownloadFinished
	DownloadCanceled
)

func (s DownloadState) String() string {
	switch s {
	case DownloadInteresting:
		return "interesting"
	case DownloadDownloading:
		return "downloading"
	case DownloadFinished:
		return "finished"
	default:
		return "canceled"
	}
}

// ChunkWriter is the §6 external interface implemented by callers to
// receive a completed (or failed) chunk transfer.
type ChunkWriter interface {
	Write(chunk chunkid.ChunkId, data []byte) error
	Finish() error
	Err(code ndnerr.Code) error
}

// FrameSender is the subset of Channel a session needs to emit frames,
// kept narrow to avoid an import cycle between ndn's session types and the
// Channel that owns them.
type FrameSender interface {
	From() string
	NextSeq() uint64
	GenCommandSeq() uint32
	SendInterest(f *wire.BaseFrame) error
	SendRespInterest(f *wire.BaseFrame) error
	SendPieceData(f *wire.BaseFrame) error
	SendPieceControl(f *wire.BaseFrame) error
}

// DownloadSession owns the state machine for transferring one chunk from
// one peer (§3, §4.2).
type DownloadSession struct {
	mu sync.Mutex

	chunk      chunkid.ChunkId
	sessionID  uint32
	sender     FrameSender
	referer    string
	preferType uint8
	writer     ChunkWriter
	cfg        ChannelConfig

	state   DownloadState
	decoder Decoder
	err     *ndnerr.Error

	lastPushed    time.Time
	nextSendTime  time.Time
	lastSendTime  time.Time
	sendCtrlTime  time.Time

	waiters []chan struct{}
}

// NewDownloadSession constructs a session and eagerly sends the Interest,
// unless the chunk is the always-present zero-length chunk, in which case
// it starts (and stays) Finished without ever touching the wire (§4.2 edge
// case, SPEC_FULL scenario 3).
func NewDownloadSession(chunk chunkid.ChunkId, sessionID uint32, sender FrameSender, referer string, preferType uint8, writer ChunkWriter, cfg ChannelConfig) *DownloadSession {
	cfg = cfg.withDefaults()
	d := &DownloadSession{
		chunk:      chunk,
		sessionID:  sessionID,
		sender:     sender,
		referer:    referer,
		preferType: preferType,
		writer:     writer,
		cfg:        cfg,
	}

	if chunk.IsEmpty() {
		d.state = DownloadFinished
		if writer != nil {
			writer.Write(chunk, nil)
			writer.Finish()
		}
		return d
	}

	d.state = DownloadInteresting
	t := now()
	d.lastSendTime = t
	d.nextSendTime = t.Add(cfg.ResendInterval)
	d.sendInterestFrame()
	return d
}

func (d *DownloadSession) sendInterestFrame() {
	fp := d.chunk.Fingerprint[:]
	frame := wire.NewInterestFrame(d.sender.From(), d.sender.NextSeq(), d.sessionID, fp, d.chunk.Length, d.preferType, d.referer)
	d.sender.SendInterest(frame)
}

// State returns the session's current FSM state.
func (d *DownloadSession) State() DownloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the cancellation error, if any.
func (d *DownloadSession) Err() *ndnerr.Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// WaitFinish blocks until the session reaches Finished or Canceled. It is
// edge-triggered: if the session is already terminal, it returns at once
// without registering a waiter (§4.2).
func (d *DownloadSession) WaitFinish() DownloadState {
	d.mu.Lock()
	if d.state == DownloadFinished || d.state == DownloadCanceled {
		s := d.state
		d.mu.Unlock()
		return s
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	<-ch
	return d.State()
}

func (d *DownloadSession) wakeWaitersLocked() {
	for _, ch := range d.waiters {
		close(ch)
	}
	d.waiters = nil
}

// OnRespInterest handles a RespInterest reply while Interesting (§4.2).
func (d *DownloadSession) OnRespInterest(errCode ndnerr.Code) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DownloadInteresting {
		return
	}
	switch errCode {
	case ndnerr.CodeOk:
		// A piece should be arriving separately; nothing to do here.
	case ndnerr.CodeWouldBlock:
		d.nextSendTime = now().Add(d.cfg.BlockInterval)
	default:
		d.cancelByErrorLocked(ndnerr.New(errCode, "resp-interest error"))
	}
}

// OnPieceData feeds one received piece into the session (§4.2).
func (d *DownloadSession) OnPieceData(index uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case DownloadInteresting:
		d.decoder = NewStreamDecoder(d.chunk)
		d.lastPushed = now()
		valid, finished := d.decoder.Push(index, data)
		if valid {
			d.state = DownloadDownloading
		}
		if finished {
			d.finishLocked()
		}
	case DownloadDownloading:
		_, finished := d.decoder.Push(index, data)
		d.lastPushed = now()
		if finished {
			d.finishLocked()
		}
	case DownloadFinished, DownloadCanceled:
		if now().Sub(d.sendCtrlTime) > d.cfg.ResendInterval {
			d.resendTerminalControlLocked()
		}
	}
}

func (d *DownloadSession) finishLocked() {
	d.state = DownloadFinished
	d.sendCtrlTime = now()
	if d.writer != nil {
		d.writer.Write(d.chunk, d.decoder.Bytes())
		d.writer.Finish()
	}
	seq := d.sender.GenCommandSeq()
	frame := wire.NewPieceControlFrame(d.sender.From(), d.sender.NextSeq(), seq, d.sessionID, d.chunk.Fingerprint[:], d.chunk.Length, uint8(wire.PieceControlFinish), nil, nil)
	d.sender.SendPieceControl(frame)
	d.wakeWaitersLocked()
}

func (d *DownloadSession) resendTerminalControlLocked() {
	d.sendCtrlTime = now()
	command := uint8(wire.PieceControlFinish)
	if d.state == DownloadCanceled {
		command = uint8(wire.PieceControlCancel)
	}
	seq := d.sender.GenCommandSeq()
	frame := wire.NewPieceControlFrame(d.sender.From(), d.sender.NextSeq(), seq, d.sessionID, d.chunk.Fingerprint[:], d.chunk.Length, command, nil, nil)
	d.sender.SendPieceControl(frame)
}

// OnTimeEscape drives resend/backoff on a periodic tick (§4.2).
func (d *DownloadSession) OnTimeEscape(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case DownloadInteresting:
		if !t.Before(d.nextSendTime) {
			d.sendInterestFrame()
			backoff := d.nextSendTime.Sub(d.lastSendTime)
			d.lastSendTime = t
			d.nextSendTime = t.Add(2 * backoff)
		}
	case DownloadDownloading:
		if t.Sub(d.lastPushed) > d.cfg.ResendInterval {
			maxIndex, lost := d.decoder.RequireIndex()
			d.sendContinueLocked(maxIndex, lost)
			d.lastPushed = t
		}
	}
}

func (d *DownloadSession) sendContinueLocked(maxIndex uint32, lost []uint32) {
	seq := d.sender.GenCommandSeq()
	lostBytes := encodeLostIndexBitset(lost)
	frame := wire.NewPieceControlFrame(d.sender.From(), d.sender.NextSeq(), seq, d.sessionID, d.chunk.Fingerprint[:], d.chunk.Length, uint8(wire.PieceControlContinue), &maxIndex, lostBytes)
	d.sender.SendPieceControl(frame)
}

// CancelByError transitions to Canceled. It is monotone: the first error
// wins and further calls are no-ops (§4.2, §7).
func (d *DownloadSession) CancelByError(err *ndnerr.Error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelByErrorLocked(err)
}

func (d *DownloadSession) cancelByErrorLocked(err *ndnerr.Error) {
	if d.state == DownloadCanceled || d.state == DownloadFinished {
		return
	}
	d.state = DownloadCanceled
	d.err = err
	d.sendCtrlTime = now()
	if d.writer != nil {
		d.writer.Err(err.Code)
	}
	d.wakeWaitersLocked()
}

// encodeLostIndexBitset packs a sorted list of indices into a compact
// bitset for the wire (§6 PieceControl.lost_index).
func encodeLostIndexBitset(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	max := indices[len(indices)-1]
	buf := make([]byte, max/8+1)
	for _, idx := range indices {
		buf[idx/8] |= 1 << (idx % 8)
	}
	return buf
}

// decodeLostIndexBitset is the inverse of encodeLostIndexBitset.
func decodeLostIndexBitset(buf []byte) []uint32 {
	var out []uint32
	for i, b := range buf {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				out = append(out, uint32(i*8+bit))
			}
		}
	}
	return out
}
