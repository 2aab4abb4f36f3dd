package agent

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/WebFirstLanguage/beenet/internal/dht"
	"github.com/WebFirstLanguage/beenet/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/beenet/pkg/ndn"
	"github.com/WebFirstLanguage/beenet/pkg/stream"
	"github.com/WebFirstLanguage/beenet/pkg/tunnel"
)

// PeerKeyRegistry is a minimal in-memory PeerKeyResolver. Nothing in the DHT
// presence/honeytag records carries a peer's raw Ed25519 public key (BID is
// a one-way hash, not reversible), so until a handshake layer exists to
// exchange keys, a peer's key must be learned out of band (e.g. the caller
// already holds it from a prior introduction) and registered here before any
// Channel can verify that peer's frames.
type PeerKeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewPeerKeyRegistry creates an empty registry.
func NewPeerKeyRegistry() *PeerKeyRegistry {
	return &PeerKeyRegistry{keys: make(map[string]ed25519.PublicKey)}
}

// Register associates bid with its Ed25519 public key.
func (r *PeerKeyRegistry) Register(bid string, key ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[bid] = key
}

// Resolve implements ndn.PeerKeyResolver.
func (r *PeerKeyRegistry) Resolve(bid string) (ed25519.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[bid]
	return key, ok
}

// PeerSession is the live NDN Channel plus StreamTransport multiplexer this
// node maintains for one remote peer once a tunnel to it is up (§12.1,
// §12.4).
type PeerSession struct {
	Channel *ndn.Channel
	Streams *stream.Manager
}

// PeerDirectory resolves a target BID to a dialable address and keeps one
// PeerSession per peer. Grounded on SPEC_FULL §12.6: "cmd/beenet's node
// bootstrap uses internal/dht (Kademlia bucket lookup) plus pkg/honeytag
// presence records to resolve a target DeviceId to a dialable address, then
// hands that address to pkg/tunnel.Dial." The bucket lookup itself lives in
// dht.DHT.Get (§14's iterative GET over K_presence); this type is the glue
// that turns the resolved PresenceRecord into an actual dialed Tunnel and
// wires it into a fresh Channel/stream.Manager pair.
type PeerDirectory struct {
	mu       sync.Mutex
	dht      *dht.DHT
	swarmID  string
	from     string
	signKey  ed25519.PrivateKey
	keyOf    ndn.PeerKeyResolver
	cc       ndn.CongestionControl
	sessions map[string]*PeerSession
}

// NewPeerDirectory builds a directory that dials peers as this node
// (identified by from/signKey) within swarmID, verifying incoming frames
// via keyOf.
func NewPeerDirectory(d *dht.DHT, swarmID, from string, signKey ed25519.PrivateKey, keyOf ndn.PeerKeyResolver) *PeerDirectory {
	return &PeerDirectory{
		dht:      d,
		swarmID:  swarmID,
		from:     from,
		signKey:  signKey,
		keyOf:    keyOf,
		cc:       ndn.NewTCPLikeCongestionControl(),
		sessions: make(map[string]*PeerSession),
	}
}

// ResolveAddrs looks up target's presence record in the DHT (K_presence,
// §14) and returns its advertised multiaddresses.
func (pd *PeerDirectory) ResolveAddrs(ctx context.Context, target string) ([]string, error) {
	key := dht.GetPresenceKey(pd.swarmID, target)
	data, err := pd.dht.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	if data == nil {
		return nil, fmt.Errorf("resolve %s: no presence record found", target)
	}

	var presence dht.PresenceRecord
	if err := cborcanon.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("resolve %s: decode presence record: %w", target, err)
	}
	if err := presence.IsValid(); err != nil {
		return nil, fmt.Errorf("resolve %s: invalid presence record: %w", target, err)
	}
	if presence.IsExpired() {
		return nil, fmt.Errorf("resolve %s: presence record expired", target)
	}
	return presence.Addrs, nil
}

// udpAddr extracts the host:port net.Dial expects from a beenet multiaddr
// of the form /ip4/<host>/udp/<port>[/...] or /ip6/<host>/udp/<port>[/...].
// It reports false for any multiaddr that isn't UDP-transported, letting
// the caller fall through to the next advertised address.
func udpAddr(multiaddr string) (string, bool) {
	parts := strings.Split(strings.Trim(multiaddr, "/"), "/")
	if len(parts) < 4 {
		return "", false
	}
	if (parts[0] != "ip4" && parts[0] != "ip6") || parts[2] != "udp" {
		return "", false
	}
	return net.JoinHostPort(parts[1], parts[3]), true
}

// DialPeer resolves target's presence record, dials the first workable UDP
// address among those advertised, and returns the PeerSession multiplexing
// NDN chunk transfer and StreamTransport traffic over that tunnel.
// Subsequent calls for the same target return the existing session rather
// than dialing again.
func (pd *PeerDirectory) DialPeer(ctx context.Context, target string) (*PeerSession, error) {
	pd.mu.Lock()
	if sess, ok := pd.sessions[target]; ok {
		pd.mu.Unlock()
		return sess, nil
	}
	pd.mu.Unlock()

	addrs, err := pd.ResolveAddrs(ctx, target)
	if err != nil {
		return nil, err
	}

	var dialed tunnel.Tunnel
	var dialErr error
	for _, addr := range addrs {
		hostport, ok := udpAddr(addr)
		if !ok {
			continue
		}
		dialed, dialErr = tunnel.DialUDP(hostport, 0)
		if dialErr == nil {
			break
		}
	}
	if dialed == nil {
		if dialErr == nil {
			dialErr = fmt.Errorf("resolve %s: no dialable udp address among %v", target, addrs)
		}
		return nil, dialErr
	}

	channel := ndn.NewChannel(pd.from, target, pd.signKey, pd.keyOf, ndn.DefaultChannelConfig())
	channel.AddTunnel(dialed, 0)
	streams := stream.NewManager(channel, pd.cc, stream.DefaultConfig())
	sess := &PeerSession{Channel: channel, Streams: streams}

	pd.mu.Lock()
	pd.sessions[target] = sess
	pd.mu.Unlock()
	return sess, nil
}

// Session returns the existing PeerSession for target, if one has already
// been dialed.
func (pd *PeerDirectory) Session(target string) (*PeerSession, bool) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	sess, ok := pd.sessions[target]
	return sess, ok
}

// Forget drops a peer's session, e.g. after its tunnel goes permanently
// dead; the next DialPeer call re-resolves and re-dials from scratch.
func (pd *PeerDirectory) Forget(target string) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	delete(pd.sessions, target)
}
