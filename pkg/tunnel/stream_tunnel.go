package tunnel

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/WebFirstLanguage/beenet/pkg/transport"
)

// streamHeaderLen reserves 4 bytes for a big-endian length prefix ahead of
// every frame written to a byte-stream-oriented transport (QUIC/TCP),
// giving callers the frame boundary a raw stream otherwise lacks.
const streamHeaderLen = 4

// streamMTU bounds a single frame over a stream tunnel; larger than the UDP
// MTU since QUIC/TCP streams are not datagram-size-constrained, but still
// bounded so a corrupt length prefix cannot trigger unbounded allocation.
const streamMTU = 64 * 1024

// streamTunnel implements Tunnel over a transport.Conn (QUIC or TCP),
// adapting the teacher's transport.Conn into the opaque raw-frame contract
// §6 specifies, length-prefixing each frame (grounded on
// pkg/transport/transport.go's Conn interface).
type streamTunnel struct {
	*stateTracker
	conn     transport.Conn
	priority int
}

// NewStreamTunnel wraps an established transport.Conn (already returned by
// a transport.Transport's Dial or Listener.Accept) as a Tunnel.
func NewStreamTunnel(conn transport.Conn, priority int) *streamTunnel {
	t := &streamTunnel{
		stateTracker: newStateTracker(256),
		conn:         conn,
		priority:     priority,
	}
	t.markActive()
	go t.recvLoop()
	return t
}

func (t *streamTunnel) recvLoop() {
	lenBuf := make([]byte, streamHeaderLen)
	for {
		if _, err := io.ReadFull(t.conn, lenBuf); err != nil {
			t.MarkDead(t.State())
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n == 0 || n > streamMTU {
			t.MarkDead(t.State())
			return
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(t.conn, payload); err != nil {
			t.MarkDead(t.State())
			return
		}
		t.deliver(payload)
	}
}

// SendRawFrame writes the length of buf[RawDataHeaderLen():] as a
// big-endian uint32 into the caller's reserved header bytes and sends buf
// whole, so each frame goes out length-prefixed.
func (t *streamTunnel) SendRawFrame(buf []byte) error {
	if t.State() == StateDead {
		return fmt.Errorf("tunnel is dead")
	}
	if len(buf) < streamHeaderLen {
		return fmt.Errorf("buffer too short for stream tunnel header")
	}
	payload := buf[streamHeaderLen:]
	binary.BigEndian.PutUint32(buf[:streamHeaderLen], uint32(len(payload)))
	_, err := t.conn.Write(buf)
	return err
}

func (t *streamTunnel) RawDataHeaderLen() int { return streamHeaderLen }
func (t *streamTunnel) MTU() int              { return streamMTU }
func (t *streamTunnel) Priority() int         { return t.priority }

func (t *streamTunnel) MarkDead(prev State) bool {
	transitioned := t.stateTracker.MarkDead(prev)
	if transitioned {
		t.conn.Close()
	}
	return transitioned
}
