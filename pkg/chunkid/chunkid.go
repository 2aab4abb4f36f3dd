// Package chunkid implements the two content-addressed identifier types used
// throughout the NDN and ObjectMap subsystems: ChunkId (a hash plus an
// explicit length) and ObjectId (a hash tagged with a type code).
package chunkid

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// FingerprintSize is the width of a BLAKE3-256 fingerprint in bytes.
const FingerprintSize = 32

// ChunkId identifies a content-addressed byte range: a fingerprint over the
// chunk's bytes plus the chunk's length. A chunk of length 0 is legal and is
// always considered present without any transfer (see DownloadSession §4.2).
type ChunkId struct {
	Fingerprint [FingerprintSize]byte
	Length      uint32
}

// CalculateChunkId hashes data with BLAKE3-256 and pairs it with len(data).
func CalculateChunkId(data []byte) ChunkId {
	sum := blake3.Sum256(data)
	return ChunkId{Fingerprint: sum, Length: uint32(len(data))}
}

// IsEmpty reports whether this is the always-present zero-length chunk.
func (c ChunkId) IsEmpty() bool {
	return c.Length == 0
}

// Equal compares fingerprint and length.
func (c ChunkId) Equal(other ChunkId) bool {
	return c.Length == other.Length && c.Fingerprint == other.Fingerprint
}

// Compare gives a bytewise total order: fingerprint first, then length.
func (c ChunkId) Compare(other ChunkId) int {
	if d := bytes.Compare(c.Fingerprint[:], other.Fingerprint[:]); d != 0 {
		return d
	}
	switch {
	case c.Length < other.Length:
		return -1
	case c.Length > other.Length:
		return 1
	default:
		return 0
	}
}

// String renders a compact, human-readable form: "chunk:<hex>:<length>".
func (c ChunkId) String() string {
	return fmt.Sprintf("chunk:%s:%d", hex.EncodeToString(c.Fingerprint[:]), c.Length)
}

// Bytes returns the wire-level encoding: fingerprint followed by a
// big-endian length, matching the "hash || length" layout named in §3.
func (c ChunkId) Bytes() []byte {
	buf := make([]byte, FingerprintSize+4)
	copy(buf, c.Fingerprint[:])
	buf[FingerprintSize] = byte(c.Length >> 24)
	buf[FingerprintSize+1] = byte(c.Length >> 16)
	buf[FingerprintSize+2] = byte(c.Length >> 8)
	buf[FingerprintSize+3] = byte(c.Length)
	return buf
}

// ObjectType tags an ObjectId with the kind of object it addresses.
type ObjectType uint8

const (
	ObjectTypeDevice ObjectType = iota
	ObjectTypePeople
	ObjectTypeFile
	ObjectTypeDir
	ObjectTypeChunk
	ObjectTypeObjectMap
	ObjectTypeText
	ObjectTypeCustom
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeDevice:
		return "device"
	case ObjectTypePeople:
		return "people"
	case ObjectTypeFile:
		return "file"
	case ObjectTypeDir:
		return "dir"
	case ObjectTypeChunk:
		return "chunk"
	case ObjectTypeObjectMap:
		return "object_map"
	case ObjectTypeText:
		return "text"
	default:
		return "custom"
	}
}

// ObjectId identifies any named object: a fingerprint over its canonical
// byte encoding, tagged with the object's type. Invariant:
// CalculateObjectId(bytes, t) == id for any id actually produced by this
// package (calculate_id(object_bytes) == object_id, §3).
type ObjectId struct {
	Fingerprint [FingerprintSize]byte
	Type        ObjectType
}

// CalculateObjectId hashes the canonical bytes of an object and tags the
// result with its type code.
func CalculateObjectId(canonicalBytes []byte, t ObjectType) ObjectId {
	sum := blake3.Sum256(canonicalBytes)
	return ObjectId{Fingerprint: sum, Type: t}
}

// Verify reports whether canonicalBytes hashes to this ObjectId under its
// recorded type, i.e. checks the I-1-adjacent invariant named in §3.
func (o ObjectId) Verify(canonicalBytes []byte) bool {
	return CalculateObjectId(canonicalBytes, o.Type) == o
}

func (o ObjectId) Equal(other ObjectId) bool {
	return o.Type == other.Type && o.Fingerprint == other.Fingerprint
}

func (o ObjectId) Compare(other ObjectId) int {
	if o.Type != other.Type {
		if o.Type < other.Type {
			return -1
		}
		return 1
	}
	return bytes.Compare(o.Fingerprint[:], other.Fingerprint[:])
}

func (o ObjectId) String() string {
	return fmt.Sprintf("%s:%s", o.Type, hex.EncodeToString(o.Fingerprint[:]))
}

func (o ObjectId) IsZero() bool {
	var zero [FingerprintSize]byte
	return o.Fingerprint == zero
}
