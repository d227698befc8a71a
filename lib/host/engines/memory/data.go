package memory

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/emirpasic/gods/maps/treemap"
)

// --------------------------------------------------------------------------
// Stored data structures
// --------------------------------------------------------------------------

// entry is a stored record. refs lists the index entries pointing at it so
// they can be removed without decoding the record.
type entry struct {
	key  host.Key
	data []byte
	refs []indexRef
}

// indexRef locates one index entry of a record
type indexRef struct {
	index *indexData
	enc   string
	entry *indexEntry
}

// indexEntry is the value of an index tree node
type indexEntry struct {
	key        host.Key
	primaryKey host.Key
	primaryEnc string
}

// storeData holds the records of an object store. Records are kept in a
// treemap ordered by their encoded key; index trees are keyed by the encoded
// index key followed by the encoded primary key.
//
// Thread-safety: lock is held by the transaction that uses the store, shared
// for readonly and exclusive for readwrite transactions. Upgrade transactions
// run while no other connection exists and do not take it.
type storeData struct {
	name       string
	opts       host.StoreOptions
	lock       sync.RWMutex
	records    *treemap.Map
	indexes    map[string]*indexData
	indexOrder []string
	current    float64      // last key handed out by the key generator
	size       atomic.Int64 // encoded bytes held by records
}

type indexData struct {
	name    string
	keyPath string
	opts    host.IndexOptions
	entries *treemap.Map
}

func newStoreData(name string, opts host.StoreOptions) *storeData {
	return &storeData{
		name:    name,
		opts:    opts,
		records: treemap.NewWithStringComparator(),
		indexes: make(map[string]*indexData),
	}
}

func newIndexData(name, keyPath string, opts host.IndexOptions) *indexData {
	return &indexData{
		name:    name,
		keyPath: keyPath,
		opts:    opts,
		entries: treemap.NewWithStringComparator(),
	}
}

// putEntry inserts e under enc together with its index entries. The key must
// not be present.
func (s *storeData) putEntry(enc string, e *entry) {
	s.records.Put(enc, e)
	for _, ref := range e.refs {
		ref.index.entries.Put(ref.enc, ref.entry)
	}
	s.size.Add(int64(len(enc) + len(e.data)))
}

// dropEntry removes the record stored under enc and returns it.
func (s *storeData) dropEntry(enc string) (*entry, bool) {
	v, ok := s.records.Get(enc)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	s.records.Remove(enc)
	for _, ref := range e.refs {
		ref.index.entries.Remove(ref.enc)
	}
	s.size.Add(-int64(len(enc) + len(e.data)))
	return e, true
}

// lookup returns the record stored under enc
func (s *storeData) lookup(enc string) (*entry, bool) {
	v, ok := s.records.Get(enc)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// --------------------------------------------------------------------------
// Tree navigation
// --------------------------------------------------------------------------

// seek returns the first node whose key is >= from and starts with prefix.
func seek(tree *treemap.Map, from, prefix string) (string, interface{}, bool) {
	k, v := tree.Ceiling(from)
	if k == nil {
		return "", nil, false
	}
	key := k.(string)
	if !strings.HasPrefix(key, prefix) {
		return "", nil, false
	}
	return key, v, true
}

// after returns the first node strictly after pos that starts with prefix.
func after(tree *treemap.Map, pos, prefix string) (string, interface{}, bool) {
	return seek(tree, string(host.Successor([]byte(pos))), prefix)
}

// each calls fn for every node starting with prefix until fn returns false.
func each(tree *treemap.Map, prefix string, fn func(key string, value interface{}) bool) {
	key, value, ok := seek(tree, prefix, prefix)
	for ok {
		if !fn(key, value) {
			return
		}
		key, value, ok = after(tree, key, prefix)
	}
}
