package objectmap

import (
	"sync"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
)

// RootUpdatedEvent is notified of a root transition before the new root
// becomes observable (§4.8's I-7: the event must see every object reachable
// from the new root already persisted in the named object cache, and fires
// before the pointer flip so an event error aborts the whole transition).
type RootUpdatedEvent interface {
	RootUpdated(decID string, newRoot, oldRoot chunkid.ObjectId) error
}

// RootHolder owns one DEC's current ObjectMap root and serializes every
// update to it through UpdateRoot, grounded on
// original_source/.../object_map/root.rs's ObjectMapRootHolder.
type RootHolder struct {
	decID string
	event RootUpdatedEvent

	mu   sync.RWMutex
	root chunkid.ObjectId

	updateMu sync.Mutex
}

// NewRootHolder constructs a holder seeded at root (the zero ObjectId for a
// brand-new, empty DEC state tree).
func NewRootHolder(decID string, root chunkid.ObjectId, event RootUpdatedEvent) *RootHolder {
	return &RootHolder{decID: decID, root: root, event: event}
}

// CurrentRoot returns the live root id.
func (h *RootHolder) CurrentRoot() chunkid.ObjectId {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.root
}

// DirectReloadRoot overwrites the root without going through the
// update_root event path, for bootstrapping from a trusted snapshot.
func (h *RootHolder) DirectReloadRoot(newRoot chunkid.ObjectId) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.root = newRoot
}

// UpdateRoot serializes a read-compute-write cycle against the current
// root. fn receives the live root (which may differ from whatever the
// caller observed earlier, if a concurrent UpdateRoot already landed) and
// returns the root that should replace it. If fn's result differs from the
// root it was handed, the RootUpdatedEvent fires first; only once that
// succeeds does the pointer actually flip, so an event failure — or fn
// itself failing — leaves the root untouched.
func (h *RootHolder) UpdateRoot(fn func(current chunkid.ObjectId) (chunkid.ObjectId, error)) (chunkid.ObjectId, error) {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()

	current := h.CurrentRoot()
	newRoot, err := fn(current)
	if err != nil {
		return chunkid.ObjectId{}, err
	}
	if newRoot.Equal(current) {
		return newRoot, nil
	}

	if h.event != nil {
		if err := h.event.RootUpdated(h.decID, newRoot, current); err != nil {
			return chunkid.ObjectId{}, err
		}
	}

	h.mu.Lock()
	h.root = newRoot
	h.mu.Unlock()
	return newRoot, nil
}
