package ndn

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/constants"
)

// CongestionControl is the pluggable policy §4.4 describes: it consumes
// RTT/delay samples and loss/no-response byte counts, and produces a
// congestion window and retransmission timeout.
type CongestionControl interface {
	OnEstimate(rtt, delay time.Duration)
	OnAck(onAir, acked uint64, at time.Time)
	OnLoss(lossCount uint64)
	OnNoResp(lossCount uint64)
	OnTimeEscape(at time.Time)
	Cwnd() uint64
	RTO() time.Duration
}

// tcpLikeCC is the default CongestionControl: slow-start/AIMD over piece
// counts, with an RFC6298-style smoothed-RTT RTO estimator (§4.4's "TCP-like
// default").
type tcpLikeCC struct {
	mu sync.Mutex

	cwnd     uint64
	ssthresh uint64

	srtt, rttvar time.Duration
	rto          time.Duration
	haveSample   bool
}

// NewTCPLikeCongestionControl builds the default CongestionControl.
func NewTCPLikeCongestionControl() CongestionControl {
	return &tcpLikeCC{
		cwnd:     constants.NDNInitialCwnd,
		ssthresh: constants.NDNInitialCwnd * 8,
		rto:      constants.NDNMinRTO,
	}
}

func (c *tcpLikeCC) OnEstimate(rtt, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSample {
		c.srtt = rtt
		c.rttvar = rtt / 2
		c.haveSample = true
	} else {
		diff := rtt - c.srtt
		if diff < 0 {
			diff = -diff
		}
		c.rttvar = (3*c.rttvar + diff) / 4
		c.srtt = (7*c.srtt + rtt) / 8
	}
	rto := c.srtt + 4*c.rttvar
	if rto < constants.NDNMinRTO {
		rto = constants.NDNMinRTO
	}
	c.rto = rto
}

func (c *tcpLikeCC) OnAck(onAir, acked uint64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acked == 0 {
		return
	}
	if c.cwnd < c.ssthresh {
		c.cwnd += acked // slow start: one piece of growth per acked piece
	} else {
		// Congestion avoidance: roughly +1 piece per window's worth acked.
		growth := acked / c.cwnd
		if growth == 0 {
			growth = 1
		}
		c.cwnd += growth
	}
}

func (c *tcpLikeCC) OnLoss(lossCount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssthresh = maxU64(c.cwnd/2, constants.NDNInitialCwnd)
	c.cwnd = c.ssthresh
}

func (c *tcpLikeCC) OnNoResp(lossCount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssthresh = maxU64(c.cwnd/4, constants.NDNInitialCwnd)
	c.cwnd = c.ssthresh
}

func (c *tcpLikeCC) OnTimeEscape(at time.Time) {}

func (c *tcpLikeCC) Cwnd() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwnd
}

func (c *tcpLikeCC) RTO() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rto
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// estimateStub records one in-flight batch awaiting a RespEstimate, per
// §4.4's est_stubs.
type estimateStub struct {
	seq      uint32
	sendTime time.Time
	sent     uint32
}

// estimateTracker implements the est_stubs/on_air/no_resp_counter/
// break_counter bookkeeping described in §4.4, independent of any single
// UploadSession since the underlying tunnel's pacing is shared channel-wide.
type estimateTracker struct {
	mu sync.Mutex

	cc    CongestionControl
	stubs []estimateStub
	onAir uint64

	noRespCounter int
	breakCounter  int
	seqCounter    uint32
}

func newEstimateTracker(cc CongestionControl) *estimateTracker {
	return &estimateTracker{cc: cc}
}

// NextEstSeq mints a new estimate sequence number for an outgoing batch.
func (e *estimateTracker) NextEstSeq() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seqCounter++
	return e.seqCounter
}

// RecordSent registers a batch of sentCount pieces sent under seq.
func (e *estimateTracker) RecordSent(seq uint32, sentCount uint32, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stubs = append(e.stubs, estimateStub{seq: seq, sendTime: at, sent: sentCount})
	e.onAir += uint64(sentCount)
}

// OnRespEstimate processes a RespEstimate reply: it walks stubs newest to
// oldest for a match, feeds the RTT sample to the CongestionControl, and
// acks every stub at or before the match (§4.4 RespEstimate handling).
func (e *estimateTracker) OnRespEstimate(seq uint32, recved uint64, at time.Time) (rtt time.Duration, acked uint64, matched bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	matchIdx := -1
	for i := len(e.stubs) - 1; i >= 0; i-- {
		if e.stubs[i].seq == seq {
			matchIdx = i
			break
		}
	}
	if matchIdx == -1 {
		return 0, 0, false
	}

	rtt = at.Sub(e.stubs[matchIdx].sendTime)
	delay := rtt / 2
	e.cc.OnEstimate(rtt, delay)

	var respCount uint64
	for i := 0; i <= matchIdx; i++ {
		respCount += uint64(e.stubs[i].sent)
	}
	e.stubs = append([]estimateStub{}, e.stubs[matchIdx+1:]...)
	if respCount > e.onAir {
		e.onAir = 0
	} else {
		e.onAir -= respCount
	}
	e.noRespCounter = 0
	e.breakCounter = 0
	e.cc.OnAck(e.onAir, respCount, at)
	return rtt, respCount, true
}

// OnTimeEscape runs the per-tick timeout scan (§4.4 step 4) and reports
// whether the tunnel should be declared outcome-broken.
func (e *estimateTracker) OnTimeEscape(at time.Time) (broken bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cc.OnTimeEscape(at)
	rto := e.cc.RTO()

	timedOut := 0
	for timedOut < len(e.stubs) && at.Sub(e.stubs[timedOut].sendTime) > rto {
		timedOut++
	}
	if timedOut == 0 {
		return false
	}

	e.noRespCounter++
	e.breakCounter++
	if e.breakCounter > constants.NDNBreakLossCount {
		e.stubs = nil
		e.onAir = 0
		return true
	}

	var lossCount uint64
	for i := 0; i < timedOut; i++ {
		lossCount += uint64(e.stubs[i].sent)
	}
	e.stubs = append([]estimateStub{}, e.stubs[timedOut:]...)
	if lossCount > e.onAir {
		e.onAir = 0
	} else {
		e.onAir -= lossCount
	}

	if e.noRespCounter > constants.NDNNoRespLossCount {
		e.cc.OnNoResp(lossCount)
		e.noRespCounter = 0
	} else {
		e.cc.OnLoss(lossCount)
	}
	return false
}

// AvailableSlots reports how many more pieces may be sent right now
// (cwnd − on_air, floored at zero).
func (e *estimateTracker) AvailableSlots() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	cwnd := e.cc.Cwnd()
	if e.onAir >= cwnd {
		return 0
	}
	return cwnd - e.onAir
}
