package stream

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/ndn"
	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

// Manager multiplexes many StreamTransport streams over one Sender (one
// peer's Channel), keyed by stream id. This mirrors ndn.Channel's own
// downloads/uploads session tables (§4.1) one layer up: Channel dispatches
// NDN frame kinds to a session-id-keyed map, Manager dispatches
// KindSessionData frames to a stream-id-keyed map of Streams. It lives in
// this package rather than on Channel itself because pkg/stream already
// imports pkg/ndn for ndn.CongestionControl; folding Manager into
// pkg/ndn would create an import cycle.
type Manager struct {
	mu      sync.Mutex
	sender  Sender
	cc      ndn.CongestionControl
	cfg     Config
	streams map[uint32]*Stream
	nextID  uint32
}

// NewManager creates a Manager that opens and dispatches streams over
// sender, sharing cc and cfg across every Stream it creates.
func NewManager(sender Sender, cc ndn.CongestionControl, cfg Config) *Manager {
	return &Manager{
		sender:  sender,
		cc:      cc,
		cfg:     cfg,
		streams: make(map[uint32]*Stream),
	}
}

// Open mints a new locally-initiated stream and registers it for dispatch.
func (m *Manager) Open() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	s := NewStream(id, m.sender, m.cc, m.cfg)
	m.streams[id] = s
	return s
}

// Get returns the stream registered under id, if any.
func (m *Manager) Get(id uint32) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	return s, ok
}

// Close discards the stream registered under id. It does not send a FIN;
// callers that want a clean half-close should call Stream.Close first.
func (m *Manager) Close(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, id)
}

// OnSessionData dispatches one incoming SessionData frame to the stream it
// names, lazily creating one if this is the first segment seen for a
// peer-initiated stream id (the same lazy-create pattern Channel's
// handleInterest uses for a fresh UploadSession, §4.1).
func (m *Manager) OnSessionData(body *wire.SessionDataBody) {
	m.mu.Lock()
	s, ok := m.streams[body.StreamID]
	if !ok {
		s = NewStream(body.StreamID, m.sender, m.cc, m.cfg)
		m.streams[body.StreamID] = s
	}
	m.mu.Unlock()
	s.OnSessionData(body)
}

// OnTimeEscape drives every live stream's periodic bookkeeping (§4.6's
// Nagle-timeout ACKs and RTO-based retransmit scan).
func (m *Manager) OnTimeEscape(t time.Time) {
	m.mu.Lock()
	live := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		s.OnTimeEscape(t)
	}
}

// Count reports how many streams are currently registered.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
