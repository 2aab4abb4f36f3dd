// NDN chunk-transfer and stream-transport frame bodies, carried inside
// BaseFrame the same way PingBody/FetchChunkBody are (SPEC_FULL §6, §11).
package wire

import "github.com/WebFirstLanguage/beenet/pkg/constants"

// PieceSessionType selects the encoding used for a chunk transfer.
type PieceSessionType uint8

const (
	PieceSessionStream PieceSessionType = iota
	PieceSessionRaptorA
	PieceSessionRaptorB
)

// PieceControlCommand is the PieceControl frame's command field.
type PieceControlCommand uint8

const (
	PieceControlFinish PieceControlCommand = iota
	PieceControlCancel
	PieceControlContinue
)

// InterestBody is the body of an "I" (Interest) frame.
type InterestBody struct {
	SessionID  uint32 `cbor:"session_id"`
	ChunkFP    []byte `cbor:"chunk_fp"`     // ChunkId fingerprint
	ChunkLen   uint32 `cbor:"chunk_len"`    // ChunkId length
	PreferType uint8  `cbor:"prefer_type"`  // PieceSessionType
	Referer    string `cbor:"referer,omitempty"`
	From       string `cbor:"from,omitempty"`
}

// RespInterestBody is the body of an "RI" (RespInterest) frame.
type RespInterestBody struct {
	SessionID      uint32 `cbor:"session_id"`
	ChunkFP        []byte `cbor:"chunk_fp"`
	ChunkLen       uint32 `cbor:"chunk_len"`
	Err            uint16 `cbor:"err"`
	Redirect       string `cbor:"redirect,omitempty"`
	RedirectReferer string `cbor:"redirect_referer,omitempty"`
}

// PieceDataBody is the body of a "P" (PieceData) frame.
type PieceDataBody struct {
	SessionID uint32  `cbor:"session_id"`
	ChunkFP   []byte  `cbor:"chunk_fp"`
	ChunkLen  uint32  `cbor:"chunk_len"`
	Desc      uint8   `cbor:"desc"` // PieceSessionType
	Index     uint32  `cbor:"index"`
	EstSeq    *uint32 `cbor:"est_seq,omitempty"`
	Data      []byte  `cbor:"data"`
}

// PieceControlBody is the body of a "PC" (PieceControl) frame.
type PieceControlBody struct {
	Sequence  uint32 `cbor:"sequence"`
	SessionID uint32 `cbor:"session_id"`
	ChunkFP   []byte `cbor:"chunk_fp"`
	ChunkLen  uint32 `cbor:"chunk_len"`
	Command   uint8  `cbor:"command"` // PieceControlCommand
	MaxIndex  *uint32 `cbor:"max_index,omitempty"`
	LostIndex []byte  `cbor:"lost_index,omitempty"` // bitset
}

// ChannelEstimateBody is the body of a "CE" (ChannelEstimate) frame.
type ChannelEstimateBody struct {
	Sequence uint32 `cbor:"sequence"`
	Recved   uint64 `cbor:"recved"`
}

// RespEstimateBody is the body of the RespEstimate reply.
type RespEstimateBody struct {
	Sequence uint32 `cbor:"sequence"`
	Recved   uint64 `cbor:"recved"`
}

// SessionDataBody carries one segment of a StreamTransport byte stream.
type SessionDataBody struct {
	StreamID uint32 `cbor:"stream_id"`
	Offset   uint64 `cbor:"offset"`
	Data     []byte `cbor:"data"`
	Fin      bool   `cbor:"fin,omitempty"`
	Ack      bool   `cbor:"ack,omitempty"`
	AckUpTo  uint64 `cbor:"ack_up_to,omitempty"`
}

// NewInterestFrame creates a new Interest ("I") frame.
func NewInterestFrame(from string, seq uint64, sessionID uint32, chunkFP []byte, chunkLen uint32, preferType uint8, referer string) *BaseFrame {
	return NewBaseFrame(constants.KindInterest, from, seq, &InterestBody{
		SessionID:  sessionID,
		ChunkFP:    chunkFP,
		ChunkLen:   chunkLen,
		PreferType: preferType,
		Referer:    referer,
		From:       from,
	})
}

// NewRespInterestFrame creates a new RespInterest ("RI") frame.
func NewRespInterestFrame(from string, seq uint64, sessionID uint32, chunkFP []byte, chunkLen uint32, errCode uint16) *BaseFrame {
	return NewBaseFrame(constants.KindRespInterest, from, seq, &RespInterestBody{
		SessionID: sessionID,
		ChunkFP:   chunkFP,
		ChunkLen:  chunkLen,
		Err:       errCode,
	})
}

// NewRedirectRespInterestFrame creates an RI frame carrying a session redirect.
func NewRedirectRespInterestFrame(from string, seq uint64, sessionID uint32, chunkFP []byte, chunkLen uint32, errCode uint16, redirect, redirectReferer string) *BaseFrame {
	return NewBaseFrame(constants.KindRespInterest, from, seq, &RespInterestBody{
		SessionID:       sessionID,
		ChunkFP:         chunkFP,
		ChunkLen:        chunkLen,
		Err:             errCode,
		Redirect:        redirect,
		RedirectReferer: redirectReferer,
	})
}

// NewPieceDataFrame creates a new PieceData ("P") frame.
func NewPieceDataFrame(from string, seq uint64, sessionID uint32, chunkFP []byte, chunkLen uint32, desc uint8, index uint32, estSeq *uint32, data []byte) *BaseFrame {
	return NewBaseFrame(constants.KindPieceData, from, seq, &PieceDataBody{
		SessionID: sessionID,
		ChunkFP:   chunkFP,
		ChunkLen:  chunkLen,
		Desc:      desc,
		Index:     index,
		EstSeq:    estSeq,
		Data:      data,
	})
}

// NewPieceControlFrame creates a new PieceControl ("PC") frame.
func NewPieceControlFrame(from string, seq uint64, sequence, sessionID uint32, chunkFP []byte, chunkLen uint32, command uint8, maxIndex *uint32, lostIndex []byte) *BaseFrame {
	return NewBaseFrame(constants.KindPieceControl, from, seq, &PieceControlBody{
		Sequence:  sequence,
		SessionID: sessionID,
		ChunkFP:   chunkFP,
		ChunkLen:  chunkLen,
		Command:   command,
		MaxIndex:  maxIndex,
		LostIndex: lostIndex,
	})
}

// NewChannelEstimateFrame creates a new ChannelEstimate ("CE") frame.
func NewChannelEstimateFrame(from string, seq uint64, sequence uint32, recved uint64) *BaseFrame {
	return NewBaseFrame(constants.KindChannelEstimate, from, seq, &ChannelEstimateBody{
		Sequence: sequence,
		Recved:   recved,
	})
}

// NewRespEstimateFrame creates a new RespEstimate frame.
func NewRespEstimateFrame(from string, seq uint64, sequence uint32, recved uint64) *BaseFrame {
	return NewBaseFrame(constants.KindRespEstimate, from, seq, &RespEstimateBody{
		Sequence: sequence,
		Recved:   recved,
	})
}

// NewSessionDataFrame creates a new SessionData frame carrying a stream segment.
func NewSessionDataFrame(from string, seq uint64, streamID uint32, offset uint64, data []byte, fin bool) *BaseFrame {
	return NewBaseFrame(constants.KindSessionData, from, seq, &SessionDataBody{
		StreamID: streamID,
		Offset:   offset,
		Data:     data,
		Fin:      fin,
	})
}

// NewSessionAckFrame creates a standalone ACK SessionData frame (no payload).
func NewSessionAckFrame(from string, seq uint64, streamID uint32, ackUpTo uint64) *BaseFrame {
	return NewBaseFrame(constants.KindSessionData, from, seq, &SessionDataBody{
		StreamID: streamID,
		Ack:      true,
		AckUpTo:  ackUpTo,
	})
}
