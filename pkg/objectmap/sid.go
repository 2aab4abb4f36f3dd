package objectmap

import (
	"sync/atomic"

	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// OpEnvType distinguishes the two op-env flavors an sid can name (§6).
type OpEnvType uint8

const (
	OpEnvTypePath OpEnvType = iota
	OpEnvTypeSingle
)

// The top two bits of an sid carry the op-env type, mirroring
// OpEnvSessionIDHelper's get_flags/get_type/set_type split of the 64-bit
// session id (root.rs).
const (
	opEnvPathFlags   uint64 = 0b00
	opEnvSingleFlags uint64 = 0b01

	sidFlagShift = 62
	sidFlagMask  = uint64(0b11) << sidFlagShift
)

func flagsFor(t OpEnvType) uint64 {
	if t == OpEnvTypeSingle {
		return opEnvSingleFlags
	}
	return opEnvPathFlags
}

// GetType extracts the op-env type encoded in sid's top two bits.
func GetType(sid uint64) (OpEnvType, error) {
	flags := sid >> sidFlagShift
	switch flags {
	case opEnvPathFlags:
		return OpEnvTypePath, nil
	case opEnvSingleFlags:
		return OpEnvTypeSingle, nil
	default:
		return 0, ndnerr.New(ndnerr.CodeInvalidFormat, "sid carries an unrecognized op-env type")
	}
}

// SetType returns sid with its top two bits replaced by t's flag value.
func SetType(sid uint64, t OpEnvType) uint64 {
	return (sid &^ sidFlagMask) | (flagsFor(t) << sidFlagShift)
}

// sidAllocator mints sids whose low 62 bits are a monotonically increasing
// counter, scoped per DEC root the way root.rs scopes one allocator per
// ObjectMapRootManager.
type sidAllocator struct {
	counter uint64
}

func (a *sidAllocator) next(t OpEnvType) uint64 {
	n := atomic.AddUint64(&a.counter, 1)
	return SetType(n, t)
}
