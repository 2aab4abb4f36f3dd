// Package ndn implements the named-data-networking chunk-transfer engine:
// the Channel multiplexer, DownloadSession/UploadSession state machines, and
// the wire-level glue described in SPEC_FULL §4.1-§4.5.
package ndn

import "time"

// ChannelConfig holds the per-peer tunable parameters named throughout §4
// and §5. Zero-value fields fall back to the constants.NDN* defaults,
// mirroring pkg/transport.Config / pkg/content.Config in this repository's
// teacher.
type ChannelConfig struct {
	// ResendInterval is the Interest/Continue resend interval (§4.2, §4.3).
	ResendInterval time.Duration
	// BlockInterval is the delay applied after a WouldBlock response (§4.2).
	BlockInterval time.Duration
	// ResendTimeout is the upload-side idle-to-cancel timeout (§4.3).
	ResendTimeout time.Duration
	// MSL is the maximum segment lifetime; reclaim waits 2*MSL (§4.3, §4.6).
	MSL time.Duration
	// InitialDownloadSessionSpeed, when non-zero, is the number of pieces an
	// UploadSession sends in its first batch and in any tick where the
	// congestion window has no free slots (zero means 8). DownloadSession
	// does not read it and keeps no speed estimate.
	InitialDownloadSessionSpeed uint64
}

// DefaultChannelConfig returns the SPEC_FULL §4.2-§4.5 default configuration.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		ResendInterval:              defaultResendInterval,
		BlockInterval:               defaultBlockInterval,
		ResendTimeout:               defaultResendTimeout,
		MSL:                         defaultMSL,
		InitialDownloadSessionSpeed: 0,
	}
}

func (c ChannelConfig) withDefaults() ChannelConfig {
	if c.ResendInterval == 0 {
		c.ResendInterval = defaultResendInterval
	}
	if c.BlockInterval == 0 {
		c.BlockInterval = defaultBlockInterval
	}
	if c.ResendTimeout == 0 {
		c.ResendTimeout = defaultResendTimeout
	}
	if c.MSL == 0 {
		c.MSL = defaultMSL
	}
	return c
}
