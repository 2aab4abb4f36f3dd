package ndn

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// UploadState is UploadSession's FSM state (§3, §4.3).
type UploadState int

const (
	UploadUninitialized UploadState = iota
	UploadUploading
	UploadFinished
	UploadCanceled
	// UploadRedirect means this session's chunk now lives at another node;
	// every Interest gets answered with that node's address instead of data.
	UploadRedirect
	// UploadWaitRedirect means a redirect is in progress but the target
	// isn't resolved yet; Interests are answered with SessionWaitRedirect
	// so the downloader backs off and retries.
	UploadWaitRedirect
)

func (s UploadState) String() string {
	switch s {
	case UploadUninitialized:
		return "uninitialized"
	case UploadUploading:
		return "uploading"
	case UploadFinished:
		return "finished"
	case UploadCanceled:
		return "canceled"
	case UploadRedirect:
		return "redirect"
	case UploadWaitRedirect:
		return "wait_redirect"
	default:
		return "unknown"
	}
}

// UploadSession serves one chunk to one remote Interest (§3, §4.3).
type UploadSession struct {
	mu sync.Mutex

	chunk     chunkid.ChunkId
	sessionID uint32
	to        string
	sender    FrameSender
	provider  Provider
	cfg       ChannelConfig

	state        UploadState
	lastActivity time.Time
	lastCommand  uint32

	// cancelCode is the error replayed to every Interest once Canceled.
	cancelCode ndnerr.Code
	// redirectTo/redirectReferer are set for Redirect sessions (§4.3).
	redirectTo      string
	redirectReferer string
}

// NewUploadSession starts serving chunk to the peer named by to. provider
// is nil only for the zero-length chunk, which needs no data plane at all.
func NewUploadSession(chunk chunkid.ChunkId, sessionID uint32, to string, sender FrameSender, provider Provider, cfg ChannelConfig) *UploadSession {
	cfg = cfg.withDefaults()
	u := &UploadSession{
		chunk:        chunk,
		sessionID:    sessionID,
		to:           to,
		sender:       sender,
		provider:     provider,
		cfg:          cfg,
		state:        UploadUploading,
		lastActivity: now(),
	}
	if chunk.IsEmpty() {
		u.state = UploadFinished
	}
	return u
}

// NewRedirectUploadSession creates a session that answers every Interest
// with a pointer at cacheNode instead of serving data itself (§4.3's
// `redirect(dump_pn, referer)` creation shape).
func NewRedirectUploadSession(chunk chunkid.ChunkId, sessionID uint32, to string, sender FrameSender, cfg ChannelConfig, cacheNode, referer string) *UploadSession {
	return &UploadSession{
		chunk:           chunk,
		sessionID:       sessionID,
		to:              to,
		sender:          sender,
		cfg:             cfg.withDefaults(),
		state:           UploadRedirect,
		lastActivity:    now(),
		redirectTo:      cacheNode,
		redirectReferer: referer,
	}
}

// NewWaitRedirectUploadSession creates a session for a chunk that is being
// redirected but has no resolved target yet (§4.3's `wait_redirect()`
// creation shape).
func NewWaitRedirectUploadSession(chunk chunkid.ChunkId, sessionID uint32, to string, sender FrameSender, cfg ChannelConfig) *UploadSession {
	return &UploadSession{
		chunk:        chunk,
		sessionID:    sessionID,
		to:           to,
		sender:       sender,
		cfg:          cfg.withDefaults(),
		state:        UploadWaitRedirect,
		lastActivity: now(),
	}
}

// State returns the session's current FSM state.
func (u *UploadSession) State() UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// SendPieces drains up to maxPieces from the provider onto the wire,
// stopping early once the provider goes idle (§4.3, §4.4's send_pieces).
// If estSeq is non-nil, it is stamped onto the last piece of the batch, the
// way §4.4 step 4 rewrites the pending buffer's estimate-seq field.
func (u *UploadSession) SendPieces(maxPieces int, estSeq *uint32) (sent int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UploadUploading {
		return 0
	}
	type outgoing struct {
		index   uint32
		payload []byte
	}
	var batch []outgoing
	buf := make([]byte, PieceSize)
	for i := 0; i < maxPieces; i++ {
		n, index, err := u.provider.NextPiece(buf)
		if err != nil {
			code := ndnerr.CodeOf(err)
			if code == "" {
				code = ndnerr.CodeErrorState
			}
			u.cancelLocked(code)
			break
		}
		if n == 0 {
			break
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		batch = append(batch, outgoing{index: index, payload: payload})
	}

	for i, piece := range batch {
		var stamp *uint32
		if estSeq != nil && i == len(batch)-1 {
			v := *estSeq
			stamp = &v
		}
		frame := wire.NewPieceDataFrame(u.sender.From(), u.sender.NextSeq(), u.sessionID, u.chunk.Fingerprint[:], u.chunk.Length, uint8(wire.PieceSessionStream), piece.index, stamp, piece.payload)
		u.sender.SendPieceData(frame)
		sent++
		u.lastActivity = now()
	}
	return sent
}

// OnPieceControl handles Finish/Cancel/Continue from the downloader (§4.3).
func (u *UploadSession) OnPieceControl(sequence uint32, command wire.PieceControlCommand, maxIndex *uint32, lostIndex []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if sequence <= u.lastCommand && u.lastCommand != 0 {
		return // stale/duplicate command, ignore
	}
	u.lastCommand = sequence
	u.lastActivity = now()

	switch command {
	case wire.PieceControlFinish:
		u.state = UploadFinished
	case wire.PieceControlCancel:
		u.cancelLocked(ndnerr.CodeInterrupted)
	case wire.PieceControlContinue:
		if u.state == UploadCanceled {
			u.replyRespInterestLocked()
			return
		}
		if u.state != UploadUploading {
			return
		}
		lost := decodeLostIndexBitset(lostIndex)
		if len(lost) > 0 {
			u.provider.Retransmit(lost)
		}
	}
}

// OnInterest handles a repeated/retransmitted Interest for this session
// (§4.3): refresh last_active, and for any non-Uploading terminal or
// pending state, reply with whatever RespInterest that state carries
// instead of letting Channel recreate the session from scratch.
func (u *UploadSession) OnInterest() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastActivity = now()

	switch u.state {
	case UploadUploading:
		// Re-enable retransmit of the initial piece in case the first
		// reply never reached the downloader.
		u.provider.Retransmit([]uint32{0})
	case UploadCanceled, UploadRedirect, UploadWaitRedirect:
		u.replyRespInterestLocked()
	case UploadFinished, UploadUninitialized:
		// no-op
	}
}

// replyRespInterestLocked sends the RespInterest appropriate to the
// session's current terminal/pending state. Caller holds u.mu.
func (u *UploadSession) replyRespInterestLocked() {
	switch u.state {
	case UploadCanceled:
		frame := wire.NewRespInterestFrame(u.sender.From(), u.sender.NextSeq(), u.sessionID, u.chunk.Fingerprint[:], u.chunk.Length, uint16(errorCodeFor(u.cancelCode)))
		u.sender.SendRespInterest(frame)
	case UploadRedirect:
		frame := wire.NewRedirectRespInterestFrame(u.sender.From(), u.sender.NextSeq(), u.sessionID, u.chunk.Fingerprint[:], u.chunk.Length, uint16(errorCodeFor(ndnerr.CodeSessionRedirect)), u.redirectTo, u.redirectReferer)
		u.sender.SendRespInterest(frame)
	case UploadWaitRedirect:
		frame := wire.NewRespInterestFrame(u.sender.From(), u.sender.NextSeq(), u.sessionID, u.chunk.Fingerprint[:], u.chunk.Length, uint16(errorCodeFor(ndnerr.CodeSessionWaitRedirect)))
		u.sender.SendRespInterest(frame)
	}
}

// OnTimeEscape cancels an Uploading session with Timeout once nothing has
// been sent or received for it for longer than ResendTimeout (§4.3). It
// never moves a session to Finished; only a Finish control does that.
func (u *UploadSession) OnTimeEscape(t time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UploadUploading {
		return
	}
	if t.Sub(u.lastActivity) > u.cfg.ResendTimeout {
		u.cancelLocked(ndnerr.CodeTimeout)
	}
}

func (u *UploadSession) cancelLocked(code ndnerr.Code) {
	if u.state == UploadFinished || u.state == UploadCanceled {
		return
	}
	u.state = UploadCanceled
	u.cancelCode = code
}

// Done reports whether the session has reached a terminal state and its
// resources may be reclaimed after 2*MSL (§4.3, §4.6).
func (u *UploadSession) Done() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == UploadFinished || u.state == UploadCanceled
}
