package tunnel

import (
	"encoding/binary"
	"fmt"
	"net"
)

// udpHeaderLen is the number of bytes this tunnel reserves at the start of
// every send buffer for its own transport header: a 2-byte magic plus a
// 2-byte length, letting the receive loop frame a stream of UDP datagrams
// the same way it would frame a byte-stream tunnel (grounded on the raw
// frame header udp.rs reserves ahead of the piece payload).
const udpHeaderLen = 4

const udpMagic = uint16(0xBEE5)

// udpMTU is the default UDP tunnel MTU: comfortably under the common
// Internet path MTU of 1500 bytes after IP/UDP headers.
const udpMTU = 1400

// udpTunnel implements Tunnel over a connected net.PacketConn, matching the
// UDP channel's batching/estimate-marker contract from SPEC_FULL §4.4. It
// reserves udpHeaderLen bytes for the caller (the Channel's send-pieces
// path writes the piece payload starting at that offset).
type udpTunnel struct {
	*stateTracker
	conn     net.Conn // already-connected (DialUDP) socket
	priority int
	mtu      int
}

// DialUDP opens a udpTunnel to addr. The returned tunnel starts in
// StateConnecting and becomes Active when its receive loop gets the first
// well-formed frame from the peer.
func DialUDP(addr string, priority int) (*udpTunnel, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return newUDPTunnel(conn, priority), nil
}

// newUDPTunnel wraps an already-connected UDP socket and starts its
// receive loop.
func newUDPTunnel(conn net.Conn, priority int) *udpTunnel {
	t := &udpTunnel{
		stateTracker: newStateTracker(256),
		conn:         conn,
		priority:     priority,
		mtu:          udpMTU,
	}
	go t.recvLoop()
	return t
}

func (t *udpTunnel) recvLoop() {
	buf := make([]byte, t.mtu)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			t.MarkDead(t.State())
			return
		}
		if n < udpHeaderLen {
			continue
		}
		magic := binary.BigEndian.Uint16(buf[0:2])
		if magic != udpMagic {
			continue
		}
		payloadLen := int(binary.BigEndian.Uint16(buf[2:4]))
		if udpHeaderLen+payloadLen > n {
			continue
		}
		t.markActive()
		frame := make([]byte, payloadLen)
		copy(frame, buf[udpHeaderLen:udpHeaderLen+payloadLen])
		t.deliver(frame)
	}
}

// SendRawFrame writes buf, which must already have udpHeaderLen reserved
// bytes at its start (the caller's batching path fills the payload after
// that offset, per §4.4 step 2).
func (t *udpTunnel) SendRawFrame(buf []byte) error {
	if t.State() == StateDead {
		return fmt.Errorf("tunnel is dead")
	}
	if len(buf) < udpHeaderLen {
		return fmt.Errorf("buffer too short for udp tunnel header")
	}
	payloadLen := len(buf) - udpHeaderLen
	binary.BigEndian.PutUint16(buf[0:2], udpMagic)
	binary.BigEndian.PutUint16(buf[2:4], uint16(payloadLen))
	_, err := t.conn.Write(buf)
	return err
}

func (t *udpTunnel) RawDataHeaderLen() int { return udpHeaderLen }
func (t *udpTunnel) MTU() int              { return t.mtu }
func (t *udpTunnel) Priority() int         { return t.priority }

// MarkDead additionally closes the underlying socket so the receive loop
// unblocks and exits.
func (t *udpTunnel) MarkDead(prev State) bool {
	transitioned := t.stateTracker.MarkDead(prev)
	if transitioned {
		t.conn.Close()
	}
	return transitioned
}
