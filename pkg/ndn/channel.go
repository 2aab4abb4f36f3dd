package ndn

import (
	"crypto/ed25519"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/beenet/pkg/constants"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
	"github.com/WebFirstLanguage/beenet/pkg/tunnel"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// ChunkStore resolves chunks this peer can serve to an incoming Interest,
// and is also how a finished DownloadSession publishes what it received.
type ChunkStore interface {
	Lookup(chunk chunkid.ChunkId) (data []byte, found bool)
}

// PeerKeyResolver resolves a BID to the Ed25519 public key used to verify
// frames claiming to be from it.
type PeerKeyResolver func(bid string) (ed25519.PublicKey, bool)

type tunnelEntry struct {
	t        tunnel.Tunnel
	priority int
}

// Channel is the per-peer multiplexer described in §4.1: it owns the
// tunnel list (ordered by preference, §12.2), the download/upload session
// tables keyed by session id, and frame dispatch.
type Channel struct {
	mu sync.Mutex

	from    string
	to      string
	signKey ed25519.PrivateKey
	keyOf   PeerKeyResolver
	store   ChunkStore
	cfg     ChannelConfig

	tunnels []tunnelEntry

	seq       uint64
	cmdSeq    uint32
	sessionID uint32

	downloads map[uint32]*DownloadSession
	uploads   map[uint32]*UploadSession

	estimates   *estimateTracker
	recvedCount uint64
	maxEstSeen  uint32

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewChannel creates a Channel for the local identity from, talking to
// peer to. keyOf must resolve to's signing key before any frame it sends
// is trusted.
func NewChannel(from, to string, signKey ed25519.PrivateKey, keyOf PeerKeyResolver, cfg ChannelConfig) *Channel {
	return &Channel{
		from:      from,
		to:        to,
		signKey:   signKey,
		keyOf:     keyOf,
		cfg:       cfg.withDefaults(),
		downloads: make(map[uint32]*DownloadSession),
		uploads:   make(map[uint32]*UploadSession),
		estimates: newEstimateTracker(NewTCPLikeCongestionControl()),
		stopCh:    make(chan struct{}),
	}
}

// SetChunkStore registers the local chunk store used to answer incoming
// Interests and to persist finished downloads.
func (c *Channel) SetChunkStore(store ChunkStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// AddTunnel registers a tunnel with a preference priority; higher priority
// wins when multiple tunnels are Active (§12.2).
func (c *Channel) AddTunnel(t tunnel.Tunnel, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tunnels = append(c.tunnels, tunnelEntry{t: t, priority: priority})
	sort.SliceStable(c.tunnels, func(i, j int) bool {
		return c.tunnels[i].priority > c.tunnels[j].priority
	})
}

// pickTunnel returns the highest-priority Active tunnel, if any.
func (c *Channel) pickTunnel() tunnel.Tunnel {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.tunnels {
		if e.t.State() == tunnel.StateActive {
			return e.t
		}
	}
	return nil
}

// From implements FrameSender.
func (c *Channel) From() string { return c.from }

// NextSeq implements FrameSender.
func (c *Channel) NextSeq() uint64 { return atomic.AddUint64(&c.seq, 1) }

// GenCommandSeq implements FrameSender and §4.3's monotone PieceControl
// sequencing.
func (c *Channel) GenCommandSeq() uint32 {
	return atomic.AddUint32(&c.cmdSeq, 1)
}

func (c *Channel) nextSessionID() uint32 {
	return atomic.AddUint32(&c.sessionID, 1)
}

func (c *Channel) sendFrame(frame *wire.BaseFrame) error {
	if err := frame.Sign(c.signKey); err != nil {
		return ndnerr.Wrap(err, ndnerr.CodeInvalidData, "sign frame")
	}
	t := c.pickTunnel()
	if t == nil {
		return ndnerr.New(ndnerr.CodeConnectFailed, "no active tunnel")
	}
	body, err := frame.Marshal()
	if err != nil {
		return ndnerr.Wrap(err, ndnerr.CodeInvalidData, "marshal frame")
	}
	buf := make([]byte, t.RawDataHeaderLen()+len(body))
	copy(buf[t.RawDataHeaderLen():], body)
	return t.SendRawFrame(buf)
}

func (c *Channel) SendInterest(f *wire.BaseFrame) error       { return c.sendFrame(f) }
func (c *Channel) SendRespInterest(f *wire.BaseFrame) error    { return c.sendFrame(f) }
func (c *Channel) SendPieceData(f *wire.BaseFrame) error       { return c.sendFrame(f) }
func (c *Channel) SendPieceControl(f *wire.BaseFrame) error    { return c.sendFrame(f) }
func (c *Channel) SendChannelEstimate(f *wire.BaseFrame) error { return c.sendFrame(f) }
func (c *Channel) SendRespEstimate(f *wire.BaseFrame) error    { return c.sendFrame(f) }

// SendSessionData implements stream.Sender, letting a stream.Manager push
// StreamTransport segments out over this same Channel/tunnel pair (§12.4).
// pkg/stream cannot be imported here (it already imports pkg/ndn for
// ndn.CongestionControl), so the dependency runs the other way: callers in
// pkg/agent hold both a *Channel and a *stream.Manager and wire them
// together via this method, satisfying stream.Sender structurally.
func (c *Channel) SendSessionData(f *wire.BaseFrame) error { return c.sendFrame(f) }

// Fetch starts a new DownloadSession for chunk, writing the result to
// writer once it finishes or fails (§3, §4.2).
func (c *Channel) Fetch(chunk chunkid.ChunkId, referer string, preferType uint8, writer ChunkWriter) *DownloadSession {
	id := c.nextSessionID()
	d := NewDownloadSession(chunk, id, c, referer, preferType, writer, c.cfg)
	c.mu.Lock()
	c.downloads[id] = d
	c.mu.Unlock()
	return d
}

// OnFrame dispatches one verified wire frame to the right session or
// handler, mirroring §4.1's per-kind routing table.
func (c *Channel) OnFrame(raw []byte) error {
	frame := &wire.BaseFrame{}
	if err := frame.Unmarshal(raw); err != nil {
		return ndnerr.Wrap(err, ndnerr.CodeInvalidData, "unmarshal frame")
	}
	pub, ok := c.keyOf(frame.From)
	if !ok {
		return ndnerr.New(ndnerr.CodePermissionDenied, "unknown sender")
	}
	if err := frame.Verify(pub); err != nil {
		return ndnerr.Wrap(err, ndnerr.CodePermissionDenied, "signature verification failed")
	}

	switch frame.Kind {
	case constants.KindInterest:
		body := &wire.InterestBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handleInterest(frame, body)
	case constants.KindRespInterest:
		body := &wire.RespInterestBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handleRespInterest(body)
	case constants.KindPieceData:
		body := &wire.PieceDataBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handlePieceData(body)
	case constants.KindPieceControl:
		body := &wire.PieceControlBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handlePieceControl(body)
	case constants.KindChannelEstimate:
		body := &wire.ChannelEstimateBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handleChannelEstimate(body)
	case constants.KindRespEstimate:
		body := &wire.RespEstimateBody{}
		if err := decodeBody(frame.Body, body); err != nil {
			return err
		}
		return c.handleRespEstimate(body)
	default:
		return ndnerr.Newf(ndnerr.CodeInvalidData, "unexpected frame kind %d", frame.Kind)
	}
}

// decodeBody re-encodes a generically-decoded CBOR body (a map, once it has
// passed through BaseFrame.Unmarshal's interface{} field) into the
// kind-specific struct dispatch picked by frame.Kind.
func decodeBody(generic interface{}, out interface{}) error {
	raw, err := cborcanon.Marshal(generic)
	if err != nil {
		return ndnerr.Wrap(err, ndnerr.CodeInvalidData, "re-marshal frame body")
	}
	if err := cborcanon.Unmarshal(raw, out); err != nil {
		return ndnerr.Wrap(err, ndnerr.CodeInvalidData, "decode frame body")
	}
	return nil
}

func (c *Channel) handleInterest(frame *wire.BaseFrame, body *wire.InterestBody) error {
	var fp [chunkid.FingerprintSize]byte
	copy(fp[:], body.ChunkFP)
	chunk := chunkid.ChunkId{Fingerprint: fp, Length: body.ChunkLen}

	// A retransmitted Interest routes to the live session instead of
	// recreating it from scratch (§4.1 step 4, §4.3's on_interest).
	c.mu.Lock()
	existing, ok := c.uploads[body.SessionID]
	store := c.store
	c.mu.Unlock()
	if ok {
		existing.OnInterest()
		return nil
	}

	if store == nil {
		return c.sendFrame(wire.NewRespInterestFrame(c.from, c.NextSeq(), body.SessionID, body.ChunkFP, body.ChunkLen, uint16(errorCodeFor(ndnerr.CodeNotFound))))
	}
	data, found := store.Lookup(chunk)
	if !found {
		return c.sendFrame(wire.NewRespInterestFrame(c.from, c.NextSeq(), body.SessionID, body.ChunkFP, body.ChunkLen, uint16(errorCodeFor(ndnerr.CodeNotFound))))
	}

	if err := c.sendFrame(wire.NewRespInterestFrame(c.from, c.NextSeq(), body.SessionID, body.ChunkFP, body.ChunkLen, uint16(errorCodeFor(ndnerr.CodeOk)))); err != nil {
		return err
	}

	provider := NewStreamProvider(SplitIntoPieces(data))
	if chunk.IsEmpty() {
		provider = NewStreamProvider(nil)
	}
	u := NewUploadSession(chunk, body.SessionID, frame.From, c, provider, c.cfg)
	c.mu.Lock()
	c.uploads[body.SessionID] = u
	c.mu.Unlock()
	u.SendPieces(c.cfg.uploadBatch(), nil)
	return nil
}

func (c *Channel) handleRespInterest(body *wire.RespInterestBody) error {
	c.mu.Lock()
	d, ok := c.downloads[body.SessionID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	d.OnRespInterest(codeForErrorCode(body.Err))
	return nil
}

func (c *Channel) handlePieceData(body *wire.PieceDataBody) error {
	// Receive-path estimate accounting (§4.4): every piece bumps the running
	// recved counter; one that carries an estimate seq gets an immediate
	// RespEstimate reply.
	c.mu.Lock()
	c.recvedCount++
	recved := c.recvedCount
	if body.EstSeq != nil && *body.EstSeq > c.maxEstSeen {
		c.maxEstSeen = *body.EstSeq
	}
	d, ok := c.downloads[body.SessionID]
	c.mu.Unlock()

	if body.EstSeq != nil {
		if err := c.sendFrame(wire.NewRespEstimateFrame(c.from, c.NextSeq(), *body.EstSeq, recved)); err != nil {
			return err
		}
	}
	if !ok {
		return nil
	}
	d.OnPieceData(body.Index, body.Data)
	return nil
}

func (c *Channel) handlePieceControl(body *wire.PieceControlBody) error {
	c.mu.Lock()
	u, ok := c.uploads[body.SessionID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	u.OnPieceControl(body.Sequence, wire.PieceControlCommand(body.Command), body.MaxIndex, body.LostIndex)
	return nil
}

func (c *Channel) handleChannelEstimate(body *wire.ChannelEstimateBody) error {
	return c.sendFrame(wire.NewRespEstimateFrame(c.from, c.NextSeq(), body.Sequence, body.Recved))
}

// handleRespEstimate feeds an estimate reply into this channel's
// estimateTracker (§4.4 RespEstimate handling).
func (c *Channel) handleRespEstimate(body *wire.RespEstimateBody) error {
	c.estimates.OnRespEstimate(body.Sequence, body.Recved, now())
	return nil
}

// RunLoop drives periodic OnTimeEscape ticks and upload piece pumping until
// ctx-equivalent Stop is called. Callers typically run this in its own
// goroutine, the way the teacher's background loops are started (e.g.
// pkg/gossip's heartbeat loop).
func (c *Channel) RunLoop(interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.BlockInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-c.stopCh:
			return
		}
	}
}

// Stop ends a running RunLoop.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Channel) tick() {
	t := now()
	c.mu.Lock()
	downloads := make([]*DownloadSession, 0, len(c.downloads))
	for _, d := range c.downloads {
		downloads = append(downloads, d)
	}
	uploads := make([]*UploadSession, 0, len(c.uploads))
	for id, u := range c.uploads {
		uploads = append(uploads, u)
		if u.Done() {
			delete(c.uploads, id)
		}
	}
	c.mu.Unlock()

	for _, d := range downloads {
		d.OnTimeEscape(t)
	}

	broken := c.estimates.OnTimeEscape(t)
	if broken {
		if tun := c.pickTunnel(); tun != nil {
			tun.MarkDead(tun.State())
		}
	}
	avail := int(c.estimates.AvailableSlots())
	if avail <= 0 {
		avail = c.cfg.uploadBatch()
	}
	for _, u := range uploads {
		u.OnTimeEscape(t)
		seq := c.estimates.NextEstSeq()
		sent := u.SendPieces(avail, &seq)
		if sent > 0 {
			c.estimates.RecordSent(seq, uint32(sent), t)
		}
	}
}

func (c ChannelConfig) uploadBatch() int {
	if c.InitialDownloadSessionSpeed > 0 {
		return int(c.InitialDownloadSessionSpeed)
	}
	return 8
}

// errorCodeFor maps an ndnerr.Code onto the small numeric space carried on
// the wire in RespInterestBody.Err.
func errorCodeFor(code ndnerr.Code) uint16 {
	switch code {
	case ndnerr.CodeOk:
		return 0
	case ndnerr.CodeNotFound:
		return 1
	case ndnerr.CodeWouldBlock:
		return 2
	case ndnerr.CodePermissionDenied:
		return 3
	case ndnerr.CodeInterrupted:
		return 4
	case ndnerr.CodeSessionRedirect:
		return 5
	case ndnerr.CodeSessionWaitRedirect:
		return 6
	case ndnerr.CodeTimeout:
		return 7
	default:
		return 255
	}
}

func codeForErrorCode(v uint16) ndnerr.Code {
	switch v {
	case 0:
		return ndnerr.CodeOk
	case 1:
		return ndnerr.CodeNotFound
	case 2:
		return ndnerr.CodeWouldBlock
	case 3:
		return ndnerr.CodePermissionDenied
	case 4:
		return ndnerr.CodeInterrupted
	case 5:
		return ndnerr.CodeSessionRedirect
	case 6:
		return ndnerr.CodeSessionWaitRedirect
	case 7:
		return ndnerr.CodeTimeout
	default:
		return ndnerr.CodeErrorState
	}
}
