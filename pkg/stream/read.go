package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// providerState is ReadProvider's top-level FSM (§4.6).
type providerState int

const (
	providerOpen providerState = iota
	providerClosed
)

// nagleState tracks whether a delayed-ACK timer is armed and since when.
type nagleState struct {
	armed bool
	since time.Time
}

// readStub is the single outstanding blocked Read, identified by stubTime so
// a late-firing timeout can tell it apart from a read that has already been
// satisfied and replaced by a new one (§4.6's stub-identity check).
type readStub struct {
	ch       chan struct{}
	need     int
	stubTime time.Time
}

// ReadProvider is the receive half of a StreamTransport stream: it
// reassembles incoming SessionData payloads and serves them to exactly one
// blocked reader at a time (§4.6, §4.7).
//
// Unlike the original's Poll/Waker plumbing, blocking here is expressed
// directly as a goroutine parked in a select over a notification channel,
// a timer, and ctx.Done — Go's scheduler plays the role the original's
// task::spawn'd timeout watcher played under an async runtime.
type ReadProvider struct {
	mu  sync.Mutex
	cfg Config

	state          providerState
	queue          *recvQueue
	nagle          nagleState
	remoteClosed   *time.Time
	timeout        bool
	readWaiter     *readStub
	readableWaiter chan struct{}

	closedStreamEnd uint64
	closedErr       error
}

// NewReadProvider builds a ReadProvider whose Nagle timer starts armed, so
// the very first touch_ack (even with nothing to send yet) rides out an
// ACK-ACK rather than waiting for real data (mirrors read.rs's
// `nagle: NagleState::Nagle(bucky_time_now())` initialization).
func NewReadProvider(cfg Config) *ReadProvider {
	cfg = cfg.withDefaults()
	return &ReadProvider{
		cfg:   cfg,
		state: providerOpen,
		queue: newRecvQueue(),
		nagle: nagleState{armed: true, since: now()},
	}
}

// Push records one incoming SessionData payload (§4.6 step 1-4). shouldAck
// reports whether the caller should immediately emit a standalone ACK
// packet (unless the packet it is about to send already carries one).
func (p *ReadProvider) Push(offset uint64, payload []byte, fin bool) (confirmed int, shouldAck bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != providerOpen {
		return 0, false
	}

	if len(payload) > 0 || fin {
		if !p.nagle.armed {
			p.nagle = nagleState{armed: true, since: now()}
		}
	}

	if p.remoteClosed != nil {
		return 0, false
	}

	newlyConfirmed, gotFin := p.queue.push(offset, payload, fin)
	if gotFin {
		t := now()
		p.remoteClosed = &t
	}
	if (newlyConfirmed > 0 && len(payload) < p.cfg.MSS) || gotFin {
		shouldAck = true
	}
	if newlyConfirmed > 0 || gotFin {
		p.wakeReadableLocked()
		p.wakeReadWaiterLocked(p.queue.streamLen())
	}
	return newlyConfirmed, shouldAck
}

// TouchAck is called by the write side whenever it is about to send any
// packet and will ride an ACK on it; it clears the Nagle timer so
// OnTimeEscape doesn't also emit a standalone one (§4.6).
func (p *ReadProvider) TouchAck() (streamEnd uint64, remoteClosed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == providerClosed {
		return p.closedStreamEnd, true
	}
	p.nagle = nagleState{}
	return p.queue.streamEnd(), p.remoteClosed != nil
}

// OnTimeEscape drives the Nagle timeout and close-waiting transition on a
// periodic tick. ackNeeded reports whether a standalone ACK packet should
// be emitted for a Nagle timer that has expired unacknowledged (§4.6).
func (p *ReadProvider) OnTimeEscape(t time.Time) (ackNeeded bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != providerOpen {
		return false, ndnerr.New(ndnerr.CodeErrorState, "read closed")
	}

	if p.nagle.armed && t.After(p.nagle.since) && t.Sub(p.nagle.since) > p.cfg.NagleTimeout {
		ackNeeded = true
		p.nagle = nagleState{}
	}
	if p.checkCloseWaitingLocked(t) {
		p.transitionClosedLocked(p.queue.streamEnd(), nil)
	}
	return ackNeeded, nil
}

func (p *ReadProvider) checkCloseWaitingLocked(t time.Time) bool {
	if p.remoteClosed == nil {
		return false
	}
	return p.queue.streamLen() == 0 && !t.Before(*p.remoteClosed) && t.Sub(*p.remoteClosed) > 2*p.cfg.MSL
}

func (p *ReadProvider) transitionClosedLocked(streamEnd uint64, err error) {
	p.state = providerClosed
	p.closedStreamEnd = streamEnd
	if err != nil {
		p.closedErr = err
	} else {
		p.closedErr = io.EOF
	}
}

// BreakWithError forces an immediate, errored close: wakes anything
// blocked and transitions straight to Closed (§4.6).
func (p *ReadProvider) BreakWithError(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != providerOpen {
		return
	}
	if p.readWaiter != nil {
		close(p.readWaiter.ch)
		p.readWaiter = nil
	}
	if p.readableWaiter != nil {
		close(p.readableWaiter)
		p.readableWaiter = nil
	}
	p.transitionClosedLocked(p.queue.streamEnd(), cause)
}

// Readable blocks until at least one byte is available, the stream closes,
// or ctx is done. It is one-shot registration per call (§4.6).
func (p *ReadProvider) Readable(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.state == providerClosed {
		n, err := p.closedLen(), p.closedErr
		p.mu.Unlock()
		return n, err
	}
	if n := p.queue.streamLen(); n > 0 {
		p.mu.Unlock()
		return n, nil
	}
	ch := make(chan struct{})
	p.readableWaiter = ch
	p.mu.Unlock()

	select {
	case <-ch:
		return p.Readable(ctx)
	case <-ctx.Done():
		p.mu.Lock()
		if p.readableWaiter == ch {
			p.readableWaiter = nil
		}
		p.mu.Unlock()
		return 0, ctx.Err()
	}
}

// Read implements the §4.6 five-condition table, blocking when none of the
// first four conditions apply. I-4 forbids a second concurrent pending
// read; callers that violate it get CodeErrorState back immediately.
func (p *ReadProvider) Read(ctx context.Context, buf []byte) (int, error) {
	p.mu.Lock()
	if p.readWaiter != nil {
		p.mu.Unlock()
		return 0, ndnerr.New(ndnerr.CodeErrorState, "pending read for former pending read")
	}
	if p.state == providerClosed {
		n, err := p.closedLen(), p.closedErr
		p.mu.Unlock()
		return n, err
	}

	have := p.queue.streamLen()
	need := len(buf)
	switch {
	case have >= need:
		p.timeout = false
		n := p.queue.read(buf)
		p.afterReadLocked(n)
		p.mu.Unlock()
		return n, nil
	case have > p.cfg.RecvDrain:
		p.timeout = false
		n := p.queue.read(buf)
		p.afterReadLocked(n)
		p.mu.Unlock()
		return n, nil
	case p.remoteClosed != nil:
		p.timeout = false
		n := p.queue.read(buf)
		p.afterReadLocked(n)
		p.mu.Unlock()
		return n, nil
	case p.timeout:
		p.timeout = false
		n := p.queue.read(buf)
		p.afterReadLocked(n)
		p.mu.Unlock()
		return n, nil
	}

	stubTime := now()
	ch := make(chan struct{})
	p.readWaiter = &readStub{ch: ch, need: need, stubTime: stubTime}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.RecvTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ch:
			return p.completeWokenRead(buf)
		case <-timer.C:
			if p.fireRecvTimeout(stubTime) {
				return p.completeWokenRead(buf)
			}
			timer.Reset(p.cfg.RecvTimeout)
		case <-ctx.Done():
			p.mu.Lock()
			if p.readWaiter != nil && p.readWaiter.ch == ch {
				p.readWaiter = nil
			}
			p.mu.Unlock()
			return 0, ctx.Err()
		}
	}
}

// fireRecvTimeout is the recv_timeout alarm: it only fires if the exact
// same stub is still installed and there is at least some data pending
// (§4.6 check_timeout). A stale or data-starved alarm is a silent no-op,
// leaving the caller's select to simply re-arm and keep waiting.
func (p *ReadProvider) fireRecvTimeout(stubTime time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readWaiter == nil || !p.readWaiter.stubTime.Equal(stubTime) {
		return false
	}
	if p.timeout || p.remoteClosed != nil || p.queue.streamLen() == 0 {
		return false
	}
	p.timeout = true
	p.readWaiter = nil
	return true
}

func (p *ReadProvider) completeWokenRead(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == providerClosed {
		return p.closedLen(), p.closedErr
	}
	n := p.queue.read(buf)
	p.afterReadLocked(n)
	return n, nil
}

// afterReadLocked mirrors "close recv queue for remote closed and no
// pending read": a read that returned no bytes because the queue was
// already empty, once the remote half-closed more than 2*MSL ago, completes
// the close-waiting transition right away instead of waiting for the next
// OnTimeEscape tick.
func (p *ReadProvider) afterReadLocked(n int) {
	if n == 0 && p.checkCloseWaitingLocked(now()) {
		p.transitionClosedLocked(p.queue.streamEnd(), nil)
	}
}

// closedLen is always 0: a Closed provider hands back no buffered data. The
// graceful close is only reached once the recv queue has fully drained
// (I-5); BreakWithError closes without draining, and whatever was still
// queued is not returned.
func (p *ReadProvider) closedLen() int {
	return 0
}

func (p *ReadProvider) wakeReadableLocked() {
	if p.readableWaiter != nil {
		close(p.readableWaiter)
		p.readableWaiter = nil
	}
}

// wakeReadWaiterLocked is §4.7's read-wake arbitration table.
func (p *ReadProvider) wakeReadWaiterLocked(total int) {
	stub := p.readWaiter
	if stub == nil {
		return
	}
	switch {
	case p.remoteClosed != nil:
		p.readWaiter = nil
		close(stub.ch)
	case total >= stub.need:
		p.readWaiter = nil
		close(stub.ch)
	case now().After(stub.stubTime) && now().Sub(stub.stubTime) > p.cfg.RecvTimeout:
		p.timeout = true
		p.readWaiter = nil
		close(stub.ch)
	case total > p.cfg.RecvDrain:
		p.readWaiter = nil
		close(stub.ch)
	}
}
