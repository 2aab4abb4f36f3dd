package objectmap

import (
	"context"
	"sync"

	"github.com/WebFirstLanguage/beenet/pkg/chunkid"
	"github.com/WebFirstLanguage/beenet/pkg/ndnerr"
)

// memNOC is an in-memory NamedObjectCache fake for tests, standing in for
// the real noc (grounded on pkg/content's in-memory fakes used across its
// *_test.go files).
type memNOC struct {
	mu      sync.Mutex
	objects map[chunkid.ObjectId][]byte
}

func newMemNOC() *memNOC {
	return &memNOC{objects: make(map[chunkid.ObjectId][]byte)}
}

func (n *memNOC) GetObject(_ context.Context, id chunkid.ObjectId) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	data, ok := n.objects[id]
	if !ok {
		return nil, ndnerr.New(ndnerr.CodeNotFound, "object not found")
	}
	return data, nil
}

func (n *memNOC) PutObject(_ context.Context, id chunkid.ObjectId, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.objects[id] = data
	return nil
}

func (n *memNOC) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.objects)
}

// recordingEvent captures every root_updated call an event handler makes.
type recordingEvent struct {
	mu    sync.Mutex
	calls []rootUpdate
	fail  error
}

type rootUpdate struct {
	decID            string
	newRoot, oldRoot chunkid.ObjectId
}

func (e *recordingEvent) RootUpdated(decID string, newRoot, oldRoot chunkid.ObjectId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.calls = append(e.calls, rootUpdate{decID: decID, newRoot: newRoot, oldRoot: oldRoot})
	return nil
}

func (e *recordingEvent) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func mkObjectID(seed byte) chunkid.ObjectId {
	return chunkid.CalculateObjectId([]byte{seed}, chunkid.ObjectTypeFile)
}
