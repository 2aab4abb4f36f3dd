package objectmap

import (
	"context"
	"strings"
	"sync"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// SingleEnv is the single-object op-env (§4.10): it binds to exactly one
// ObjectMap, never touching the DEC's RootHolder, and hands its caller a
// fresh content id on Commit for them to thread wherever they need it
// (typically as a value written through a PathEnv). Grounded on
// single_env.rs's ObjectMapSingleOpEnv, whose root starts unset and can be
// bound exactly once via set_root.
type SingleEnv struct {
	sid        uint64
	rootHolder *RootHolder
	cache      *OpEnvMemoryCache

	mu      sync.Mutex
	root    *ObjectMap
	rootSet bool
}

// NewSingleEnv creates an env bound to no object yet; CreateNew or one of
// the Load variants must run before any mutator or Commit call succeeds.
func NewSingleEnv(sid uint64, rootHolder *RootHolder, rootCache *RootCache) *SingleEnv {
	return &SingleEnv{sid: sid, rootHolder: rootHolder, cache: NewOpEnvMemoryCache(rootCache)}
}

// Sid returns this env's session id.
func (e *SingleEnv) Sid() uint64 { return e.sid }

func (e *SingleEnv) setRoot(m *ObjectMap) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootSet {
		return ndnerr.New(ndnerr.CodeAlreadyExists, "single env root already set")
	}
	e.root = m
	e.rootSet = true
	return nil
}

// CreateNew binds this env to a brand-new, empty ObjectMap of contentType.
func (e *SingleEnv) CreateNew(contentType ContentType) error {
	var m *ObjectMap
	if contentType == ContentTypeSet {
		m = NewSet()
	} else {
		m = NewMap()
	}
	return e.setRoot(m)
}

// Load binds this env to the existing ObjectMap stored under id, copying
// it so later mutation never affects whatever else may hold the same id.
func (e *SingleEnv) Load(ctx context.Context, id chunkid.ObjectId) error {
	data, err := e.cache.Get(ctx, id)
	if err != nil {
		return err
	}
	m, err := Decode(data)
	if err != nil {
		return err
	}
	return e.setRoot(m)
}

// LoadByPath parses "path/key" and delegates to LoadByKey, matching
// ObjectMapPath::parse_path_allow_empty_key's split.
func (e *SingleEnv) LoadByPath(ctx context.Context, fullPath string) error {
	idx := strings.LastIndex(fullPath, "/")
	if idx < 0 {
		return e.LoadByKey(ctx, "", fullPath)
	}
	return e.LoadByKey(ctx, fullPath[:idx], fullPath[idx+1:])
}

// LoadByKey resolves path/key against the DEC's current root and loads
// whatever ObjectId is found there.
func (e *SingleEnv) LoadByKey(ctx context.Context, path, key string) error {
	if key == "" {
		return ndnerr.New(ndnerr.CodeInvalidFormat, "load_by_key: root itself cannot be bound to a single env, a key is required")
	}
	root := e.rootHolder.CurrentRoot()
	tree, err := loadTree(ctx, e.cache, root)
	if err != nil {
		return err
	}
	fullKey := key
	if path != "" {
		fullKey = path + "/" + key
	}
	value, ok := tree.Get(fullKey)
	if !ok {
		return ndnerr.Newf(ndnerr.CodeNotFound, "load_by_key: not found: root=%s path=%s key=%s", root, path, key)
	}
	return e.Load(ctx, value)
}

// LoadWithInnerPath loads id directly, or — if innerPath is non-empty —
// resolves innerPath as a key within the ObjectMap stored at id first and
// loads whatever ObjectId that key names.
func (e *SingleEnv) LoadWithInnerPath(ctx context.Context, id chunkid.ObjectId, innerPath string) error {
	target := id
	if innerPath != "" {
		data, err := e.cache.Get(ctx, id)
		if err != nil {
			return err
		}
		tree, err := Decode(data)
		if err != nil {
			return err
		}
		value, ok := tree.Get(innerPath)
		if !ok {
			return ndnerr.Newf(ndnerr.CodeNotFound, "load_with_inner_path: not found: root=%s inner_path=%s", id, innerPath)
		}
		target = value
	}
	return e.Load(ctx, target)
}

func (e *SingleEnv) requireRoot() (*ObjectMap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rootSet {
		return nil, ndnerr.New(ndnerr.CodeErrorState, "single env root not set")
	}
	return e.root, nil
}

// Iterator returns a snapshot walker over the bound ObjectMap (§12.5,
// grounded on single_env.rs's lazily-initialized `iterator: OnceCell<...>`
// field — this repository builds it fresh on demand rather than caching it,
// since NewIterator's snapshot is already cheap relative to a network round
// trip).
func (e *SingleEnv) Iterator() (*Iterator, error) {
	m, err := e.requireRoot()
	if err != nil {
		return nil, err
	}
	return NewIterator(m), nil
}

// Get reads key from the bound ObjectMap.
func (e *SingleEnv) Get(key string) (chunkid.ObjectId, bool, error) {
	m, err := e.requireRoot()
	if err != nil {
		return chunkid.ObjectId{}, false, err
	}
	v, ok := m.Get(key)
	return v, ok, nil
}

// Set writes key -> value into the bound ObjectMap, returning the previous
// value if any.
func (e *SingleEnv) Set(key string, value chunkid.ObjectId) (chunkid.ObjectId, bool, error) {
	m, err := e.requireRoot()
	if err != nil {
		return chunkid.ObjectId{}, false, err
	}
	prev, existed := m.Set(key, value)
	return prev, existed, nil
}

// Remove deletes key from the bound ObjectMap.
func (e *SingleEnv) Remove(key string) (chunkid.ObjectId, bool, error) {
	m, err := e.requireRoot()
	if err != nil {
		return chunkid.ObjectId{}, false, err
	}
	prev, existed := m.Remove(key)
	return prev, existed, nil
}

// Insert adds value as a Set member, keyed by its own stringified id.
func (e *SingleEnv) Insert(value chunkid.ObjectId) error {
	m, err := e.requireRoot()
	if err != nil {
		return err
	}
	m.Set(value.String(), value)
	return nil
}

// Contains reports whether value is a member of the bound Set.
func (e *SingleEnv) Contains(value chunkid.ObjectId) (bool, error) {
	m, err := e.requireRoot()
	if err != nil {
		return false, err
	}
	_, ok := m.Get(value.String())
	return ok, nil
}

// Commit flushes the bound ObjectMap to the backing named object cache and
// returns its content id. Unlike PathEnv, SingleEnv never touches a
// RootHolder — the caller decides what, if anything, to do with the
// returned id (§4.10).
func (e *SingleEnv) Commit(ctx context.Context) (chunkid.ObjectId, error) {
	m, err := e.requireRoot()
	if err != nil {
		return chunkid.ObjectId{}, err
	}
	id, err := m.Flush()
	if err != nil {
		return chunkid.ObjectId{}, err
	}
	buf, err := m.Encode()
	if err != nil {
		return chunkid.ObjectId{}, err
	}
	e.cache.Put(id, buf)
	if err := e.cache.Commit(ctx); err != nil {
		return chunkid.ObjectId{}, err
	}
	return id, nil
}

// Abort discards any staged writes without persisting anything.
func (e *SingleEnv) Abort() error {
	e.cache.Abort()
	return nil
}
