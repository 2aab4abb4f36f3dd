package objectmap

import "github.com/WebFirstLanguage/beenet/pkg/chunkid"

// Item is one key/value pair produced by an Iterator.
type Item struct {
	Key   string
	Value chunkid.ObjectId
}

// Iterator walks an ObjectMap's entries in a stable, sorted-by-key order
// (§12.5). It snapshots the entries at construction, so mutating the
// underlying ObjectMap after NewIterator does not affect an in-progress
// walk — the iterator.rs file itself did not survive the example pack's
// filtering, so this is grounded on the snapshot-then-walk shape
// path_env.rs's list()/metadata() calls imply rather than a specific
// source file (see DESIGN.md).
type Iterator struct {
	items []Item
	pos   int
}

// NewIterator snapshots m's current contents for iteration.
func NewIterator(m *ObjectMap) *Iterator {
	buf, err := m.Encode()
	if err != nil {
		return &Iterator{}
	}
	snapshot, err := Decode(buf)
	if err != nil {
		return &Iterator{}
	}

	w := snapshot.wireFormLocked()
	items := make([]Item, len(w.Entries))
	for i, e := range w.Entries {
		items[i] = Item{Key: e.Key, Value: e.Value}
	}
	return &Iterator{items: items}
}

// Next returns the next item and true, or the zero Item and false once the
// walk is exhausted.
func (it *Iterator) Next() (Item, bool) {
	if it.pos >= len(it.items) {
		return Item{}, false
	}
	item := it.items[it.pos]
	it.pos++
	return item, true
}

// Reset rewinds the walk to the beginning of the same snapshot.
func (it *Iterator) Reset() { it.pos = 0 }

// Remaining is the number of items left to visit.
func (it *Iterator) Remaining() int { return len(it.items) - it.pos }
