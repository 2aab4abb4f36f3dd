package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/wire"
)

type recordingSender struct {
	mu     sync.Mutex
	from   string
	seq    uint64
	frames []*wire.BaseFrame
}

func (r *recordingSender) From() string { return r.from }

func (r *recordingSender) NextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *recordingSender) SendSessionData(f *wire.BaseFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingSender) last() *wire.SessionDataBody {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1].Body.(*wire.SessionDataBody)
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestWriter_WriteChunksIntoMSSSizedSegments(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	cfg := DefaultConfig()
	cfg.MSS = 4
	w := NewWriter(1, sender, read, nil, cfg)

	n, err := w.Write([]byte("abcdefghij"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 10 {
		t.Fatalf("wrote %d bytes, want 10", n)
	}
	if sender.count() != 3 {
		t.Fatalf("expected 3 MSS-bounded segments (4+4+2), got %d", sender.count())
	}
}

func TestWriter_EveryFrameRidesTheCurrentAckPosition(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	read.Push(0, []byte("inbound"), false)
	w := NewWriter(1, sender, read, nil, DefaultConfig())

	w.Write([]byte("out"))
	body := sender.last()
	if !body.Ack || body.AckUpTo != 7 {
		t.Fatalf("ack=%v ackUpTo=%d, want true,7", body.Ack, body.AckUpTo)
	}
}

func TestWriter_CloseSendsFinExactlyOnce(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	w := NewWriter(1, sender, read, nil, DefaultConfig())

	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got error: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected exactly one FIN frame, got %d frames", sender.count())
	}
	if !sender.last().Fin {
		t.Fatal("expected the sent frame to carry the FIN flag")
	}
}

func TestWriter_WriteAfterCloseIsRejected(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	w := NewWriter(1, sender, read, nil, DefaultConfig())
	w.Close()

	if _, err := w.Write([]byte("late")); err == nil {
		t.Fatal("expected an error writing to a closed stream")
	}
}

func TestWriter_OnAckReleasesUnackedSegments(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	w := NewWriter(1, sender, read, nil, DefaultConfig())
	w.Write([]byte("hello"))
	if w.OnAir() != 1 {
		t.Fatalf("onAir = %d, want 1", w.OnAir())
	}

	w.OnAck(5, time.Now())
	if w.OnAir() != 0 {
		t.Fatalf("onAir after full ack = %d, want 0", w.OnAir())
	}
}

func TestWriter_OnTimeEscapeRetransmitsUnackedSegment(t *testing.T) {
	sender := &recordingSender{from: "alice"}
	read := NewReadProvider(DefaultConfig())
	w := NewWriter(1, sender, read, nil, DefaultConfig())
	w.Write([]byte("hello"))
	before := sender.count()

	w.OnTimeEscape(time.Now().Add(time.Hour)) // certainly past any RTO
	if sender.count() != before+1 {
		t.Fatalf("expected exactly one retransmit, got %d new frames", sender.count()-before)
	}
}
