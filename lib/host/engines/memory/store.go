package memory

import (
	"math"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
)

// --------------------------------------------------------------------------
// Object store (implements host.ObjectStore)
// --------------------------------------------------------------------------

type objectStore struct {
	tx   *transaction
	data *storeData
}

func (s *objectStore) Name() string {
	return s.data.name
}

func (s *objectStore) KeyPath() string {
	return s.data.opts.KeyPath
}

func (s *objectStore) AutoIncrement() bool {
	return s.data.opts.AutoIncrement
}

func (s *objectStore) IndexNames() []string {
	return append([]string(nil), s.data.indexOrder...)
}

func (s *objectStore) Index(name string) (host.Index, error) {
	idx, ok := s.data.indexes[name]
	if !ok {
		return nil, host.NewError(host.NameNotFound, "object store %q has no index %q", s.data.name, name)
	}
	return &index{store: s, data: idx}, nil
}

func (s *objectStore) CreateIndex(name, keyPath string, opts host.IndexOptions) (host.Index, error) {
	if s.tx.mode != host.ModeVersionChange {
		return nil, host.NewError(host.NameInvalidState, "indexes can only be created during an upgrade")
	}
	if keyPath == "" || !host.ValidKeyPath(keyPath) {
		return nil, host.NewError(host.NameSyntax, "%q is not a valid key path", keyPath)
	}
	v, err := s.tx.runner.Call(func() (any, error) {
		return s.tx.createIndex(s, name, keyPath, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*index), nil
}

func (s *objectStore) Add(value any, key host.Key) *host.Request {
	return s.write(value, key, false)
}

func (s *objectStore) Put(value any, key host.Key) *host.Request {
	return s.write(value, key, true)
}

func (s *objectStore) write(value any, key host.Key, overwrite bool) *host.Request {
	if s.tx.mode == host.ModeReadOnly {
		return host.Rejected(host.NewError(host.NameReadOnly, "the transaction is read-only"))
	}
	record, err := codec.Clone(value)
	if err != nil {
		return host.Rejected(host.Wrap(host.NameData, err, "the value cannot be cloned"))
	}
	if key != nil {
		if key, err = host.NormalizeKey(key); err != nil {
			return host.Rejected(err)
		}
	}
	return s.tx.runner.Submit(func() (any, error) {
		return s.tx.write(s.data, record, key, overwrite)
	})
}

func (s *objectStore) Get(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	enc := string(host.EncodeKey(k))
	return s.tx.runner.Submit(func() (any, error) {
		e, ok := s.data.lookup(enc)
		if !ok {
			return nil, nil
		}
		return s.tx.decode(e.data)
	})
}

func (s *objectStore) GetAll() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		out := make([]any, 0, s.data.records.Size())
		var err error
		each(s.data.records, "", func(_ string, v interface{}) bool {
			var value any
			if value, err = s.tx.decode(v.(*entry).data); err != nil {
				return false
			}
			out = append(out, value)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *objectStore) Delete(key host.Key) *host.Request {
	if s.tx.mode == host.ModeReadOnly {
		return host.Rejected(host.NewError(host.NameReadOnly, "the transaction is read-only"))
	}
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	enc := string(host.EncodeKey(k))
	return s.tx.runner.Submit(func() (any, error) {
		s.tx.remove(s.data, enc)
		return nil, nil
	})
}

func (s *objectStore) Count() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		return s.data.records.Size(), nil
	})
}

func (s *objectStore) Clear() *host.Request {
	if s.tx.mode == host.ModeReadOnly {
		return host.Rejected(host.NewError(host.NameReadOnly, "the transaction is read-only"))
	}
	return s.tx.runner.Submit(func() (any, error) {
		for _, k := range s.data.records.Keys() {
			s.tx.remove(s.data, k.(string))
		}
		return nil, nil
	})
}

func (s *objectStore) OpenCursor() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		c := &cursor{tx: s.tx, store: s.data}
		return c.seek("")
	})
}

// --------------------------------------------------------------------------
// Index (implements host.Index)
// --------------------------------------------------------------------------

type index struct {
	store *objectStore
	data  *indexData
}

func (i *index) Name() string {
	return i.data.name
}

func (i *index) KeyPath() string {
	return i.data.keyPath
}

func (i *index) Unique() bool {
	return i.data.opts.Unique
}

func (i *index) MultiEntry() bool {
	return i.data.opts.MultiEntry
}

func (i *index) Get(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	prefix := string(host.EncodeKey(k))
	tx := i.store.tx
	return tx.runner.Submit(func() (any, error) {
		_, v, ok := seek(i.data.entries, prefix, prefix)
		if !ok {
			return nil, nil
		}
		return tx.decodePrimary(i.store.data, v.(*indexEntry))
	})
}

func (i *index) GetAll(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	prefix := string(host.EncodeKey(k))
	tx := i.store.tx
	return tx.runner.Submit(func() (any, error) {
		out := []any{}
		each(i.data.entries, prefix, func(_ string, v interface{}) bool {
			var value any
			if value, err = tx.decodePrimary(i.store.data, v.(*indexEntry)); err != nil {
				return false
			}
			out = append(out, value)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (i *index) Count() *host.Request {
	return i.store.tx.runner.Submit(func() (any, error) {
		return i.data.entries.Size(), nil
	})
}

func (i *index) OpenCursor() *host.Request {
	return i.store.tx.runner.Submit(func() (any, error) {
		c := &cursor{tx: i.store.tx, store: i.store.data, index: i.data}
		return c.seek("")
	})
}

// --------------------------------------------------------------------------
// Cursor (implements host.Cursor)
// --------------------------------------------------------------------------

// cursor is an immutable position; Continue resolves with a new cursor.
type cursor struct {
	tx    *transaction
	store *storeData
	index *indexData // nil for object store cursors

	pos        string
	key        host.Key
	primaryKey host.Key
	value      any
}

func (c *cursor) Key() host.Key {
	return c.key
}

func (c *cursor) PrimaryKey() host.Key {
	return c.primaryKey
}

func (c *cursor) Value() any {
	return c.value
}

func (c *cursor) Continue() *host.Request {
	return c.tx.runner.Submit(func() (any, error) {
		return c.seek(string(host.Successor([]byte(c.pos))))
	})
}

// seek resolves the first position >= from. The result is returned as any so
// that the end of the range is an untyped nil.
func (c *cursor) seek(from string) (any, error) {
	next := &cursor{tx: c.tx, store: c.store, index: c.index}
	if c.index == nil {
		pos, v, ok := seek(c.store.records, from, "")
		if !ok {
			return nil, nil
		}
		e := v.(*entry)
		value, err := c.tx.decode(e.data)
		if err != nil {
			return nil, err
		}
		next.pos, next.key, next.primaryKey, next.value = pos, e.key, e.key, value
		return next, nil
	}

	pos, v, ok := seek(c.index.entries, from, "")
	if !ok {
		return nil, nil
	}
	ie := v.(*indexEntry)
	value, err := c.tx.decodePrimary(c.store, ie)
	if err != nil {
		return nil, err
	}
	next.pos, next.key, next.primaryKey, next.value = pos, ie.key, ie.primaryKey, value
	return next, nil
}

// --------------------------------------------------------------------------
// Transaction internals (run on the runner goroutine)
// --------------------------------------------------------------------------

func (tx *transaction) decode(data []byte) (any, error) {
	v, err := tx.codec().Unmarshal(data)
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "a stored record cannot be decoded")
	}
	return v, nil
}

func (tx *transaction) decodePrimary(st *storeData, ie *indexEntry) (any, error) {
	e, ok := st.lookup(ie.primaryEnc)
	if !ok {
		return nil, host.NewError(host.NameUnknown, "index entry points to a missing record")
	}
	return tx.decode(e.data)
}

// write stores record and maintains the indexes of st.
func (tx *transaction) write(st *storeData, record any, explicit host.Key, overwrite bool) (any, error) {
	gen := &keyGenerator{tx: tx, st: st}
	key, err := host.ResolveKey(st.opts, record, explicit, gen)
	if err != nil {
		return nil, err
	}
	enc := string(host.EncodeKey(key))

	old, exists := st.lookup(enc)
	if exists && !overwrite {
		return nil, host.Wrap(host.NameConstraint, host.ErrKeyExists,
			"a record with key %v already exists in object store %q", key, st.name)
	}

	data, err := tx.codec().Marshal(record)
	if err != nil {
		return nil, host.Wrap(host.NameData, err, "the record cannot be encoded")
	}

	e := &entry{key: key, data: data}
	for _, name := range st.indexOrder {
		idx := st.indexes[name]
		for _, ik := range host.IndexKeys(record, idx.keyPath, idx.opts.MultiEntry) {
			prefix := string(host.EncodeKey(ik))
			if idx.opts.Unique && indexTaken(idx, prefix, enc) {
				return nil, host.NewError(host.NameConstraint,
					"unique index %q of object store %q already contains key %v", idx.name, st.name, ik)
			}
			e.refs = append(e.refs, indexRef{
				index: idx,
				enc:   prefix + enc,
				entry: &indexEntry{key: ik, primaryKey: key, primaryEnc: enc},
			})
		}
	}

	if exists {
		st.dropEntry(enc)
		tx.onUndo(func() { st.putEntry(enc, old) })
	}
	st.putEntry(enc, e)
	tx.onUndo(func() { st.dropEntry(enc) })
	gen.apply()
	return key, nil
}

// indexTaken reports whether the index key encoded as prefix is used by a
// record other than the one encoded as primaryEnc.
func indexTaken(idx *indexData, prefix, primaryEnc string) bool {
	taken := false
	each(idx.entries, prefix, func(_ string, v interface{}) bool {
		if v.(*indexEntry).primaryEnc != primaryEnc {
			taken = true
			return false
		}
		return true
	})
	return taken
}

func (tx *transaction) remove(st *storeData, enc string) {
	if old, ok := st.dropEntry(enc); ok {
		tx.onUndo(func() { st.putEntry(enc, old) })
	}
}

// createIndex builds a new index over the existing records of s. The index
// only becomes visible if every record satisfies it.
func (tx *transaction) createIndex(s *objectStore, name, keyPath string, opts host.IndexOptions) (any, error) {
	st := s.data
	if _, exists := st.indexes[name]; exists {
		return nil, host.NewError(host.NameConstraint, "object store %q already has an index %q", st.name, name)
	}
	idx := newIndexData(name, keyPath, opts)

	type addition struct {
		e   *entry
		ref indexRef
	}
	var (
		additions []addition
		failure   error
	)
	st.records.Each(func(k, v interface{}) {
		if failure != nil {
			return
		}
		enc, e := k.(string), v.(*entry)
		value, err := tx.decode(e.data)
		if err != nil {
			failure = err
			return
		}
		for _, ik := range host.IndexKeys(value, keyPath, opts.MultiEntry) {
			prefix := string(host.EncodeKey(ik))
			if opts.Unique && indexTaken(idx, prefix, enc) {
				failure = host.NewError(host.NameConstraint,
					"cannot create unique index %q: key %v is used by more than one record", name, ik)
				return
			}
			ref := indexRef{
				index: idx,
				enc:   prefix + enc,
				entry: &indexEntry{key: ik, primaryKey: e.key, primaryEnc: enc},
			}
			idx.entries.Put(ref.enc, ref.entry)
			additions = append(additions, addition{e: e, ref: ref})
		}
	})
	if failure != nil {
		return nil, failure
	}

	for _, a := range additions {
		e, previous := a.e, a.e.refs
		e.refs = append(previous[:len(previous):len(previous)], a.ref)
		tx.onUndo(func() { e.refs = previous })
	}
	st.indexes[name] = idx
	st.indexOrder = append(st.indexOrder, name)
	tx.onUndo(func() {
		delete(st.indexes, name)
		st.indexOrder = st.indexOrder[:len(st.indexOrder)-1]
	})
	return &index{store: s, data: idx}, nil
}

// --------------------------------------------------------------------------
// Key generator
// --------------------------------------------------------------------------

// keyGenerator hands out keys from the store's generator. Explicit numeric
// keys raise the generator only once the write succeeded.
type keyGenerator struct {
	tx       *transaction
	st       *storeData
	observed float64
	pending  bool
}

func (g *keyGenerator) Next() (float64, error) {
	if g.st.current >= host.MaxGeneratedKey {
		return 0, host.NewError(host.NameConstraint, "the key generator of object store %q is exhausted", g.st.name)
	}
	previous := g.st.current
	g.st.current++
	g.tx.onUndo(func() { g.st.current = previous })
	return g.st.current, nil
}

func (g *keyGenerator) Observe(key float64) {
	g.observed, g.pending = key, true
}

func (g *keyGenerator) apply() {
	if !g.pending {
		return
	}
	next := math.Min(math.Floor(g.observed), host.MaxGeneratedKey)
	if next <= g.st.current {
		return
	}
	previous := g.st.current
	g.st.current = next
	g.tx.onUndo(func() { g.st.current = previous })
}
