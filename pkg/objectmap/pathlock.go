package objectmap

import (
	"sync"
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

type pathLockEntry struct {
	sid       uint64
	expiresAt time.Time // zero means "no expiry"
}

// PathLock is the per-DEC cooperative advisory lock over path strings,
// shared by every op-env bound to one root, grounded on path_env.rs's use
// of `self.lock.try_enter_path(path, sid)` ahead of every mutating call and
// `self.lock.unlock(...)` on env drop. It is advisory only: a holder that
// never calls Unlock leaks the lock until its entry's TTL (if any) expires.
type PathLock struct {
	mu    sync.Mutex
	holds map[string]pathLockEntry
}

// NewPathLock creates an empty lock table.
func NewPathLock() *PathLock {
	return &PathLock{holds: make(map[string]pathLockEntry)}
}

// TryEnterPath acquires path for sid if it is free or already held by sid,
// failing fast with CodeAlreadyLocked otherwise rather than blocking —
// matching the "as_try" branch of lock_path, which every PathEnv mutating
// method uses ahead of its copy-on-write walk.
func (l *PathLock) TryEnterPath(path string, sid uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, held := l.holds[path]; held {
		if e.sid == sid {
			return nil
		}
		if e.expiresAt.IsZero() || time.Now().Before(e.expiresAt) {
			return ndnerr.Newf(ndnerr.CodeAlreadyLocked, "path already locked: %s", path)
		}
		// expired: fall through and re-acquire for sid
	}
	l.holds[path] = pathLockEntry{sid: sid}
	return nil
}

// TryLockList acquires every path in paths for sid, all-or-nothing: on the
// first conflict it releases whatever it had already grabbed in this call
// and returns the conflict error.
func (l *PathLock) TryLockList(paths []string, sid uint64, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	acquired := make([]string, 0, len(paths))
	for _, path := range paths {
		if e, held := l.holds[path]; held && e.sid != sid {
			if e.expiresAt.IsZero() || time.Now().Before(e.expiresAt) {
				for _, p := range acquired {
					delete(l.holds, p)
				}
				return ndnerr.Newf(ndnerr.CodeAlreadyLocked, "path already locked: %s", path)
			}
		}
		l.holds[path] = pathLockEntry{sid: sid, expiresAt: expiresAt}
		acquired = append(acquired, path)
	}
	return nil
}

// UnlockPath releases path if it is currently held by sid.
func (l *PathLock) UnlockPath(path string, sid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.holds[path]; ok && e.sid == sid {
		delete(l.holds, path)
	}
}

// Unlock releases every path sid holds, matching ObjectMapPathOpEnv's Drop
// impl calling unlock(sid) with no specific path.
func (l *PathLock) Unlock(sid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, e := range l.holds {
		if e.sid == sid {
			delete(l.holds, path)
		}
	}
}
