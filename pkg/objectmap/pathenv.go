package objectmap

import (
	"context"
	"sync"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// pathOp is one recorded mutation, replayed against a fresher root if
// Commit discovers the DEC root moved underneath this env while it ran
// (§4.9's optimistic-retry commit).
type pathOp struct {
	kind      string // "insert", "set", "remove"
	path      string
	value     chunkid.ObjectId
	prevValue *chunkid.ObjectId
}

// PathEnv is the path-addressed op-env transaction (§4.9). It snapshots the
// DEC root at construction, applies every mutation against an in-memory
// copy-on-write tree, and only touches the shared RootHolder at Commit.
//
// The original's ObjectMapPath walks a tree of nested ObjectMap nodes, one
// per path segment. This repository's ObjectMap (core.go) never nests —
// every key maps directly to a leaf ObjectId — so "path" here is simply the
// full slash-joined string used as a single flat key into the root node.
// This is a deliberate scoping simplification: every invariant PathEnv is
// responsible for (O-1 per-DEC total order, O-2 per-env call order, O-3
// root_updated-after-persistence, and the replay-on-conflict behavior of
// §8 scenarios 5/6) is exercised identically whether "path" addresses a
// nested node or a flat key, since none of them depend on directory depth.
type PathEnv struct {
	sid        uint64
	rootHolder *RootHolder
	lock       *PathLock
	cache      *OpEnvMemoryCache

	writeMu sync.Mutex

	startRoot          chunkid.ObjectId
	tree               *ObjectMap
	ops                []pathOp
	committed, aborted bool
}

// NewPathEnv binds a fresh PathEnv to rootHolder's current root, loading
// that root's content through an overlay cache rooted at rootCache.
func NewPathEnv(ctx context.Context, sid uint64, rootHolder *RootHolder, lock *PathLock, rootCache *RootCache) (*PathEnv, error) {
	cache := NewOpEnvMemoryCache(rootCache)
	start := rootHolder.CurrentRoot()
	tree, err := loadTree(ctx, cache, start)
	if err != nil {
		return nil, err
	}
	return &PathEnv{sid: sid, rootHolder: rootHolder, lock: lock, cache: cache, startRoot: start, tree: tree}, nil
}

func loadTree(ctx context.Context, cache *OpEnvMemoryCache, root chunkid.ObjectId) (*ObjectMap, error) {
	if root.IsZero() {
		return NewMap(), nil
	}
	data, err := cache.Get(ctx, root)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Sid returns this env's session id.
func (e *PathEnv) Sid() uint64 { return e.sid }

// Root returns the root this env was bound to at construction.
func (e *PathEnv) Root() chunkid.ObjectId { return e.startRoot }

func (e *PathEnv) checkFinalizedLocked() error {
	if e.committed || e.aborted {
		return ndnerr.New(ndnerr.CodeErrorState, "path env already finalized")
	}
	return nil
}

// GetByPath reads the value at path, if any.
func (e *PathEnv) GetByPath(path string) (chunkid.ObjectId, bool) {
	return e.tree.Get(path)
}

// List returns every entry currently visible to this env, in sorted-key
// order (§12.5, path_env.rs's list()). The original walks a directory node
// one level deep; this repository's flat root makes that the same
// operation as a full iteration.
func (e *PathEnv) List() []Item {
	it := NewIterator(e.tree)
	items := make([]Item, 0, it.Remaining())
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		items = append(items, item)
	}
	return items
}

// Iterator returns a snapshot walker over this env's current content.
func (e *PathEnv) Iterator() *Iterator {
	return NewIterator(e.tree)
}

// InsertWithPath adds a new path -> value entry, failing with
// CodeAlreadyExists if path is already bound.
func (e *PathEnv) InsertWithPath(path string, value chunkid.ObjectId) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.checkFinalizedLocked(); err != nil {
		return err
	}
	if err := e.lock.TryEnterPath(path, e.sid); err != nil {
		return err
	}
	if _, existed := e.tree.Get(path); existed {
		return ndnerr.Newf(ndnerr.CodeAlreadyExists, "insert_with_path: path already exists: %s", path)
	}
	e.tree.Set(path, value)
	e.ops = append(e.ops, pathOp{kind: "insert", path: path, value: value})
	return nil
}

// SetWithPath overwrites (or, with autoInsert, creates) path -> value,
// optionally gated by a compare-and-swap prevValue. It returns the value
// that was replaced, if any.
func (e *PathEnv) SetWithPath(path string, value chunkid.ObjectId, prevValue *chunkid.ObjectId, autoInsert bool) (chunkid.ObjectId, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.checkFinalizedLocked(); err != nil {
		return chunkid.ObjectId{}, err
	}
	if err := e.lock.TryEnterPath(path, e.sid); err != nil {
		return chunkid.ObjectId{}, err
	}

	cur, existed := e.tree.Get(path)
	if !existed && !autoInsert {
		return chunkid.ObjectId{}, ndnerr.Newf(ndnerr.CodeNotFound, "set_with_path: path does not exist: %s", path)
	}
	if err := e.tree.SetWithKey(path, value, prevValue); err != nil {
		return chunkid.ObjectId{}, err
	}
	e.ops = append(e.ops, pathOp{kind: "set", path: path, value: value, prevValue: prevValue})
	if existed {
		return cur, nil
	}
	return chunkid.ObjectId{}, nil
}

// RemoveWithPath removes path, optionally gated by a compare-and-swap
// prevValue, returning the removed value.
func (e *PathEnv) RemoveWithPath(path string, prevValue *chunkid.ObjectId) (chunkid.ObjectId, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.checkFinalizedLocked(); err != nil {
		return chunkid.ObjectId{}, err
	}
	if err := e.lock.TryEnterPath(path, e.sid); err != nil {
		return chunkid.ObjectId{}, err
	}

	cur, existed := e.tree.Get(path)
	if !existed {
		return chunkid.ObjectId{}, ndnerr.Newf(ndnerr.CodeNotFound, "remove_with_path: path does not exist: %s", path)
	}
	if prevValue != nil && !cur.Equal(*prevValue) {
		return chunkid.ObjectId{}, ndnerr.Newf(ndnerr.CodeUnmatch, "remove_with_path: value changed since read: %s", path)
	}
	e.tree.Remove(path)
	e.ops = append(e.ops, pathOp{kind: "remove", path: path, prevValue: prevValue})
	return cur, nil
}

func applyOp(tree *ObjectMap, op pathOp) error {
	switch op.kind {
	case "insert":
		if _, existed := tree.Get(op.path); existed {
			return ndnerr.Newf(ndnerr.CodeAlreadyExists, "replay insert: already exists: %s", op.path)
		}
		tree.Set(op.path, op.value)
	case "set":
		return tree.SetWithKey(op.path, op.value, op.prevValue)
	case "remove":
		cur, existed := tree.Get(op.path)
		if !existed {
			return ndnerr.Newf(ndnerr.CodeNotFound, "replay remove: missing: %s", op.path)
		}
		if op.prevValue != nil && !cur.Equal(*op.prevValue) {
			return ndnerr.Newf(ndnerr.CodeUnmatch, "replay remove: value changed: %s", op.path)
		}
		tree.Remove(op.path)
	}
	return nil
}

// Commit finalizes this env's changes against the live DEC root (§4.9). If
// nothing changed relative to the env's own snapshot, it is a no-op. If the
// live root still matches the env's snapshot, the staged writes flush
// directly. If the live root moved (a concurrent env committed first), this
// replays the env's own recorded op-list against the newer root instead of
// failing outright — the optimistic-retry behavior exercised by §8
// scenarios 5 and 6. A replay failure (a conflicting write landed on the
// very key this env touched) propagates and the env is left unusable.
func (e *PathEnv) Commit(ctx context.Context) (chunkid.ObjectId, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.checkFinalizedLocked(); err != nil {
		return chunkid.ObjectId{}, err
	}

	newRoot, err := e.tree.Flush()
	if err != nil {
		return chunkid.ObjectId{}, err
	}
	if len(e.ops) == 0 || newRoot.Equal(e.startRoot) {
		e.committed = true
		e.lock.Unlock(e.sid)
		return e.startRoot, nil
	}

	startRoot := e.startRoot
	result, err := e.rootHolder.UpdateRoot(func(latest chunkid.ObjectId) (chunkid.ObjectId, error) {
		if latest.Equal(startRoot) {
			buf, err := e.tree.Encode()
			if err != nil {
				return chunkid.ObjectId{}, err
			}
			e.cache.Put(newRoot, buf)
			if err := e.cache.GC(ctx, newRoot); err != nil {
				return chunkid.ObjectId{}, err
			}
			if err := e.cache.Commit(ctx); err != nil {
				return chunkid.ObjectId{}, err
			}
			return newRoot, nil
		}

		// The root moved underneath us: redo this env's op-list against
		// the object the DEC root now actually points to.
		e.cache.Abort()
		replayTree, err := loadTree(ctx, e.cache, latest)
		if err != nil {
			return chunkid.ObjectId{}, err
		}
		for _, op := range e.ops {
			if err := applyOp(replayTree, op); err != nil {
				return chunkid.ObjectId{}, ndnerr.Wrap(err, ndnerr.CodeUnmatch, "commit: op replay failed against updated root")
			}
		}
		replayedRoot, err := replayTree.Flush()
		if err != nil {
			return chunkid.ObjectId{}, err
		}
		buf, err := replayTree.Encode()
		if err != nil {
			return chunkid.ObjectId{}, err
		}
		e.cache.Put(replayedRoot, buf)
		if err := e.cache.GC(ctx, replayedRoot); err != nil {
			return chunkid.ObjectId{}, err
		}
		if err := e.cache.Commit(ctx); err != nil {
			return chunkid.ObjectId{}, err
		}
		e.tree = replayTree
		return replayedRoot, nil
	})
	if err != nil {
		return chunkid.ObjectId{}, err
	}

	e.committed = true
	e.lock.Unlock(e.sid)
	return result, nil
}

// Abort discards every staged write and releases this env's path locks
// without ever touching the RootHolder.
func (e *PathEnv) Abort() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.committed {
		return ndnerr.New(ndnerr.CodeErrorState, "path env already committed")
	}
	e.aborted = true
	e.cache.Abort()
	e.lock.Unlock(e.sid)
	return nil
}
