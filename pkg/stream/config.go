// Package stream implements StreamTransport: a reliable, ordered,
// bidirectional byte stream carried over SessionData frames, independent of
// the NDN chunk-transfer engine in pkg/ndn (SPEC_FULL §4.6-§4.7, §12.4).
package stream

import (
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/constants"
)

const (
	defaultRecvDrain    = constants.StreamRecvDrain
	defaultRecvTimeout  = constants.StreamRecvTimeout
	defaultNagleTimeout = constants.StreamNagleTimeout
	defaultMSL          = constants.NDNMSL
	defaultMSS          = constants.StreamMSS
)

// now is overridable in tests that need deterministic time.
var now = time.Now

// Config holds the per-stream tunable parameters named in §4.6-§4.7. A
// zero-value field falls back to the constants.Stream* default, mirroring
// ndn.ChannelConfig's withDefaults pattern.
type Config struct {
	// RecvDrain is the low-watermark: a blocked read unblocks early once
	// the backlog exceeds this many bytes (§4.7).
	RecvDrain int
	// RecvTimeout is how long a pending read waits before its timeout flag
	// fires and it returns whatever is buffered (§4.6).
	RecvTimeout time.Duration
	// NagleTimeout is the delay before a solitary pending ACK is flushed
	// standalone (§4.6).
	NagleTimeout time.Duration
	// MSL is the maximum segment lifetime; half-close reclaim waits 2*MSL.
	MSL time.Duration
	// MSS bounds one outgoing SessionData payload.
	MSS int
}

// DefaultConfig returns the SPEC_FULL §4.6-§4.7 default configuration.
func DefaultConfig() Config {
	return Config{
		RecvDrain:    defaultRecvDrain,
		RecvTimeout:  defaultRecvTimeout,
		NagleTimeout: defaultNagleTimeout,
		MSL:          defaultMSL,
		MSS:          defaultMSS,
	}
}

func (c Config) withDefaults() Config {
	if c.RecvDrain == 0 {
		c.RecvDrain = defaultRecvDrain
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = defaultRecvTimeout
	}
	if c.NagleTimeout == 0 {
		c.NagleTimeout = defaultNagleTimeout
	}
	if c.MSL == 0 {
		c.MSL = defaultMSL
	}
	if c.MSS == 0 {
		c.MSS = defaultMSS
	}
	return c
}
