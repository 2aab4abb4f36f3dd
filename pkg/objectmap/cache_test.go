package objectmap

import (
	"context"
	"testing"
	"time"
)

func TestRootCache_GetFallsThroughOnMiss(t *testing.T) {
	noc := newMemNOC()
	id := mkObjectID(1)
	noc.PutObject(context.Background(), id, []byte("payload"))

	c := NewRootCache(noc, 10, time.Minute)
	data, err := c.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q, want payload", data)
	}
}

func TestRootCache_EvictsLeastRecentlyUsedPastCapacity(t *testing.T) {
	noc := newMemNOC()
	c := NewRootCache(noc, 2, time.Minute)
	a, b, cc := mkObjectID(1), mkObjectID(2), mkObjectID(3)

	c.Put(context.Background(), a, []byte("a"))
	c.Put(context.Background(), b, []byte("b"))
	c.Put(context.Background(), cc, []byte("c")) // should evict a (least recently used)

	noc.PutObject(context.Background(), a, []byte("a-from-noc"))
	data, err := c.Get(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "a-from-noc" {
		t.Fatalf("expected a cache miss to fall through to noc, got %q", data)
	}
}

func TestRootCache_ExpiresPastTTL(t *testing.T) {
	noc := newMemNOC()
	c := NewRootCache(noc, 10, -time.Second) // already expired
	id := mkObjectID(1)
	c.Put(context.Background(), id, []byte("stale"))
	noc.PutObject(context.Background(), id, []byte("fresh"))

	data, err := c.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "fresh" {
		t.Fatalf("expired entry should have fallen through to noc, got %q", data)
	}
}

func TestOpEnvMemoryCache_PendingReadsBeforeCommit(t *testing.T) {
	noc := newMemNOC()
	root := NewRootCache(noc, 10, time.Minute)
	c := NewOpEnvMemoryCache(root)
	id := mkObjectID(1)

	c.Put(id, []byte("staged"))
	data, err := c.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "staged" {
		t.Fatalf("got %q, want staged", data)
	}
	if noc.count() != 0 {
		t.Fatal("staged writes must not be durable before Commit")
	}
}

func TestOpEnvMemoryCache_CommitFlushesToBackingStore(t *testing.T) {
	noc := newMemNOC()
	root := NewRootCache(noc, 10, time.Minute)
	c := NewOpEnvMemoryCache(root)
	id := mkObjectID(1)
	c.Put(id, []byte("staged"))

	if err := c.Commit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if noc.count() != 1 {
		t.Fatalf("expected exactly one durable object, got %d", noc.count())
	}
}

func TestOpEnvMemoryCache_AbortDiscardsStagedWrites(t *testing.T) {
	noc := newMemNOC()
	root := NewRootCache(noc, 10, time.Minute)
	c := NewOpEnvMemoryCache(root)
	id := mkObjectID(1)
	c.Put(id, []byte("staged"))

	c.Abort()
	if err := c.Commit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if noc.count() != 0 {
		t.Fatal("aborted writes must never become durable")
	}
}
