package agent

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/WebFirstLanguage/beenet/internal/dht"
	"github.com/WebFirstLanguage/beenet/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/beenet/pkg/identity"
)

func newTestDHT(t *testing.T) (*dht.DHT, *identity.Identity) {
	t.Helper()
	id, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := dht.New(&dht.Config{SwarmID: "swarm1", Identity: id})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return d, id
}

func putPresence(t *testing.T, d *dht.DHT, swarmID string, target *identity.Identity, addrs []string) {
	t.Helper()
	record, err := dht.NewPresenceRecord(swarmID, target, addrs, []string{"presence"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := cborcanon.Marshal(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := dht.GetPresenceKey(swarmID, target.BID())
	if err := d.Put(context.Background(), key, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func noSuchKey(bid string) (ed25519.PublicKey, bool) { return nil, false }

func TestUdpAddr(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/ip4/203.0.113.5/udp/27487/quic", "203.0.113.5:27487", true},
		{"/ip6/::1/udp/9000", "[::1]:9000", true},
		{"/ip4/0.0.0.0/tcp/8080", "", false},
		{"garbage", "", false},
	}
	for _, c := range cases {
		got, ok := udpAddr(c.in)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("udpAddr(%q) = (%q,%v), want (%q,%v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestPeerDirectory_ResolveAddrsReadsPresenceRecord(t *testing.T) {
	d, id := newTestDHT(t)
	peer, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	putPresence(t, d, "swarm1", peer, []string{"/ip4/127.0.0.1/udp/27487/quic"})

	pd := NewPeerDirectory(d, "swarm1", id.BID(), id.SigningPrivateKey, noSuchKey)
	addrs, err := pd.ResolveAddrs(context.Background(), peer.BID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "/ip4/127.0.0.1/udp/27487/quic" {
		t.Fatalf("addrs = %v, want one matching entry", addrs)
	}
}

func TestPeerDirectory_ResolveAddrsFailsForUnknownPeer(t *testing.T) {
	d, id := newTestDHT(t)
	pd := NewPeerDirectory(d, "swarm1", id.BID(), id.SigningPrivateKey, noSuchKey)
	if _, err := pd.ResolveAddrs(context.Background(), "bee:key:unknown"); err == nil {
		t.Fatal("expected an error resolving a peer with no presence record")
	}
}

func TestPeerDirectory_DialPeerReusesSessionForSameTarget(t *testing.T) {
	d, id := newTestDHT(t)
	peer, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	putPresence(t, d, "swarm1", peer, []string{"/ip4/127.0.0.1/udp/27487/quic"})

	pd := NewPeerDirectory(d, "swarm1", id.BID(), id.SigningPrivateKey, noSuchKey)

	first, err := pd.DialPeer(context.Background(), peer.BID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := pd.DialPeer(context.Background(), peer.BID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected DialPeer to return the same session for a repeated target")
	}
	if _, ok := pd.Session(peer.BID()); !ok {
		t.Fatal("expected Session to find the dialed peer")
	}

	pd.Forget(peer.BID())
	if _, ok := pd.Session(peer.BID()); ok {
		t.Fatal("expected Forget to drop the cached session")
	}
}
