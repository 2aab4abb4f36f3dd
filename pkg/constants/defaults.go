// Package constants defines cross-cutting constants from §21 defaults and §18 encodings
package constants

import "time"

// DHT Configuration (§21)
const (
	// DHT bucket size K=20, alpha=3
	DHTBucketSize = 20
	DHTAlpha      = 3
)

// Timing Configuration (§21)
const (
	// Presence TTL 10 min, refresh at 5 min
	PresenceTTL     = 10 * time.Minute
	PresenceRefresh = 5 * time.Minute

	// Honeytag HandleIndex expire ≈ 20 min
	HandleIndexExpire = 20 * time.Minute

	// Bare-name lease 90 days, refresh at ≤60%
	BareNameLease        = 90 * 24 * time.Hour
	BareNameRefreshRatio = 0.6

	// Gossip heartbeat 1s, mesh degree 6-12
	GossipHeartbeat = 1 * time.Second
	GossipMeshMin   = 6
	GossipMeshMax   = 12

	// Max tolerated clock skew ±120s
	MaxClockSkew = 120 * time.Second

	// Buzz interval 5s
	BuzzInterval = 5 * time.Second

	// SWIM probe/timeout intervals
	SWIMProbeInterval    = 1 * time.Second
	SWIMPingTimeout      = 500 * time.Millisecond
	SWIMIndirectTimeout  = 1 * time.Second
	SWIMSuspicionTime    = 5 * time.Second
)

// Data Configuration (§21)
const (
	// Chunk size 1 MiB, concurrent chunk fetch 4
	ChunkSize            = 1024 * 1024 // 1 MiB
	ConcurrentChunkFetch = 4
)

// Protocol Configuration (§18)
const (
	// Protocol version
	ProtocolVersion = 1

	// Default ports
	DefaultQUICPort = 27487
	DefaultBuzzPort = 27488

	// Hash algorithm: BLAKE3-256 by default
	HashAlgorithm = "blake3-256"

	// Text encoding: UTF-8, NFC on input, names normalized to NFKC
	TextEncoding = "utf-8"
)

// BeeQuint-32 Configuration (§4.1)
const (
	// Consonants and vowels for proquint encoding
	Consonants = "bdfghjklmnprstv z"
	Vowels     = "aeiou"
)

// Error Codes (§17)
const (
	ErrorInvalidSig      = 1
	ErrorNotInSwarm      = 2
	ErrorNoProvider      = 3
	ErrorRateLimit       = 4
	ErrorVersionMismatch = 5

	// Honeytag-specific errors
	ErrorNameNotFound      = 20
	ErrorNameLeaseExpired  = 21
	ErrorHandleMismatch    = 22
	ErrorNotOwner          = 23
	ErrorDelegationMissing = 24
)

// Message Kinds (§15)
const (
	KindPing             = 1
	KindPong             = 2
	KindDHTGet           = 10
	KindDHTPut           = 11
	KindAnnouncePresence = 20
	KindPubSubMsg        = 30
	KindFetchChunk       = 40
	KindChunkData        = 41
	KindHoneytagOp       = 50

	// SWIM failure-detector message kinds
	KindSWIMPing     = 60
	KindSWIMPingReq  = 61
	KindSWIMAck      = 62
	KindSWIMNack     = 63
	KindSWIMSuspect  = 64
	KindSWIMAlive    = 65
	KindSWIMConfirm  = 66
	KindSWIMLeave    = 67
	KindSWIMPingResp = 68

	// Gossip mesh message kinds
	KindGossipIHave     = 70
	KindGossipIWant     = 71
	KindGossipGraft     = 72
	KindGossipPrune     = 73
	KindGossipHeartbeat = 74

	// NDN chunk-transfer message kinds (this repository's core, SPEC_FULL §6)
	KindInterest        = 80
	KindRespInterest     = 81
	KindPieceData        = 82
	KindPieceControl     = 83
	KindChannelEstimate  = 84
	KindRespEstimate     = 85
	KindSessionData      = 86
)

// NDN Configuration (SPEC_FULL §4.2-§4.5)
const (
	// Interest resend interval before exponential backoff kicks in.
	NDNResendInterval = 2 * time.Second
	// Delay before resending after a WouldBlock response.
	NDNBlockInterval = 200 * time.Millisecond
	// Upload-side idle-to-cancel timeout.
	NDNResendTimeout = 10 * time.Second
	// Maximum segment lifetime; half-close/reclaim wait is 2*MSL.
	NDNMSL = 30 * time.Second
)

// UDP channel congestion-control configuration (SPEC_FULL §4.4)
const (
	// Consecutive no-response RTO groups before declaring extra loss.
	NDNNoRespLossCount = 3
	// Consecutive RTO groups before the tunnel is declared broken.
	NDNBreakLossCount = 6
	// Initial congestion window, in pieces.
	NDNInitialCwnd = 4
	// Minimum RTO floor.
	NDNMinRTO = 200 * time.Millisecond
)

// Stream transport configuration (SPEC_FULL §4.6-§4.7, §12.4)
const (
	// Low-watermark: a read unblocks early once backlog exceeds this many bytes.
	StreamRecvDrain = 16 * 1024
	// How long a pending read waits before the timeout flag fires.
	StreamRecvTimeout = 5 * time.Second
	// Delay before a solitary pending ACK is flushed standalone.
	StreamNagleTimeout = 40 * time.Millisecond
	// Maximum segment size for one SessionData payload.
	StreamMSS = 1200
)

// ObjectMap configuration (SPEC_FULL §4.8-§4.10)
const (
	// RootCache TTL and capacity.
	ObjectMapRootCacheTTL      = 5 * time.Minute
	ObjectMapRootCacheCapacity = 1024
	// Branching threshold: a leaf splits into sub-maps past this many entries.
	ObjectMapBranchThreshold = 64
	// GC sweep interval for op-envs and path locks.
	ObjectMapGCInterval = 30 * time.Second
)
