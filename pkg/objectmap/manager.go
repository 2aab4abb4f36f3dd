package objectmap

import (
	"context"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/constants"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// RootManager is the per-DEC front door onto the ObjectMap transaction
// machinery: it owns the RootHolder, the shared PathLock and RootCache,
// and mints sids for freshly created op-envs, grounded on root.rs's
// ObjectMapRootManager (which plays the same coordinating role over
// ObjectMapRootHolder, OpEnvSessionIDHelper and the op-env constructors).
type RootManager struct {
	holder    *RootHolder
	lock      *PathLock
	rootCache *RootCache
	sids      sidAllocator
}

// NewRootManager creates a manager for one DEC root, backed by noc for
// durable storage with a bounded, TTL-expiring read cache in front of it.
func NewRootManager(decID string, initialRoot chunkid.ObjectId, event RootUpdatedEvent, noc NamedObjectCache, cacheCapacity int, cacheTTL time.Duration) *RootManager {
	return &RootManager{
		holder:    NewRootHolder(decID, initialRoot, event),
		lock:      NewPathLock(),
		rootCache: NewRootCache(noc, cacheCapacity, cacheTTL),
	}
}

// NewDefaultRootManager applies SPEC_FULL's default RootCache sizing
// (constants.ObjectMapRootCacheCapacity/TTL).
func NewDefaultRootManager(decID string, initialRoot chunkid.ObjectId, event RootUpdatedEvent, noc NamedObjectCache) *RootManager {
	return NewRootManager(decID, initialRoot, event, noc, constants.ObjectMapRootCacheCapacity, constants.ObjectMapRootCacheTTL)
}

// CurrentRoot returns the DEC's live root id.
func (r *RootManager) CurrentRoot() chunkid.ObjectId {
	return r.holder.CurrentRoot()
}

// CreatePathOpEnv mints a PathEnv bound to the current root.
func (r *RootManager) CreatePathOpEnv(ctx context.Context) (*PathEnv, error) {
	sid := r.sids.next(OpEnvTypePath)
	return NewPathEnv(ctx, sid, r.holder, r.lock, r.rootCache)
}

// CreateSingleOpEnv mints a SingleEnv, unbound until one of its load/create
// methods runs.
func (r *RootManager) CreateSingleOpEnv() *SingleEnv {
	sid := r.sids.next(OpEnvTypeSingle)
	return NewSingleEnv(sid, r.holder, r.rootCache)
}

// ReleaseOpEnv releases every path lock the given sid still holds, for
// callers that abandon an env without calling Commit or Abort (e.g. on
// connection loss) — the Go analogue of the original's Drop impl running
// unlock() unconditionally.
func (r *RootManager) ReleaseOpEnv(sid uint64) {
	r.lock.Unlock(sid)
}

// OpEnvTypeOf resolves which kind of op-env an sid names, failing if the
// sid is malformed.
func OpEnvTypeOf(sid uint64) (OpEnvType, error) {
	t, err := GetType(sid)
	if err != nil {
		return 0, ndnerr.Wrap(err, ndnerr.CodeInvalidFormat, "op_env_type_of")
	}
	return t, nil
}
