package bolt

import (
	"bytes"
	"math"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Object store (implements host.ObjectStore)
// --------------------------------------------------------------------------

// objectStore keeps records in the store's record bucket, keyed by the
// encoded primary key. Index buckets map the encoded index key followed by
// the encoded primary key to the encoded primary key.
type objectStore struct {
	tx     *transaction
	schema *storeSchema
}

func (s *objectStore) Name() string {
	return s.schema.Name
}

func (s *objectStore) KeyPath() string {
	return s.schema.KeyPath
}

func (s *objectStore) AutoIncrement() bool {
	return s.schema.AutoIncrement
}

func (s *objectStore) IndexNames() []string {
	return s.schema.indexNames()
}

func (s *objectStore) Index(name string) (host.Index, error) {
	idx := s.schema.index(name)
	if idx == nil {
		return nil, host.NewError(host.NameNotFound, "object store %q has no index %q", s.schema.Name, name)
	}
	return &index{store: s, schema: idx}, nil
}

func (s *objectStore) CreateIndex(name, keyPath string, opts host.IndexOptions) (host.Index, error) {
	if s.tx.mode != host.ModeVersionChange {
		return nil, host.NewError(host.NameInvalidState, "indexes can only be created during an upgrade")
	}
	if keyPath == "" || !host.ValidKeyPath(keyPath) {
		return nil, host.NewError(host.NameSyntax, "%q is not a valid key path", keyPath)
	}
	v, err := s.tx.runner.Call(func() (any, error) {
		return s.createIndex(name, keyPath, opts)
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
		return s.put(record, key, overwrite)
	})
}

func (s *objectStore) Get(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	enc := host.EncodeKey(k)
	return s.tx.runner.Submit(func() (any, error) {
		b, err := s.tx.recordBucket(s.schema)
		if err != nil {
			return nil, err
		}
		data := b.Get(enc)
		if data == nil {
			return nil, nil
		}
		return s.decode(data)
	})
}

func (s *objectStore) GetAll() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		b, err := s.tx.recordBucket(s.schema)
		if err != nil {
			return nil, err
		}
		out := []any{}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			value, err := s.decode(v)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
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
	enc := host.EncodeKey(k)
	return s.tx.runner.Submit(func() (any, error) {
		b, err := s.tx.recordBucket(s.schema)
		if err != nil {
			return nil, err
		}
		old := b.Get(enc)
		if old == nil {
			return nil, nil
		}
		if err := s.removeIndexEntries(enc, old); err != nil {
			return nil, err
		}
		if err := b.Delete(enc); err != nil {
			return nil, host.Wrap(host.NameUnknown, err, "deleting the record failed")
		}
		return nil, nil
	})
}

func (s *objectStore) Count() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		b, err := s.tx.recordBucket(s.schema)
		if err != nil {
			return nil, err
		}
		return countKeys(b, nil), nil
	})
}

func (s *objectStore) Clear() *host.Request {
	if s.tx.mode == host.ModeReadOnly {
		return host.Rejected(host.NewError(host.NameReadOnly, "the transaction is read-only"))
	}
	return s.tx.runner.Submit(func() (any, error) {
		dbBucket, err := s.tx.databaseBucket()
		if err != nil {
			return nil, err
		}
		names := [][]byte{recordBucketName(s.schema.Name)}
		for _, idx := range s.schema.Indexes {
			names = append(names, indexBucketName(s.schema.Name, idx.Name))
		}
		// the key generator survives a clear
		sequence := dbBucket.Bucket(names[0]).Sequence()
		for _, name := range names {
			if err := dbBucket.DeleteBucket(name); err != nil {
				return nil, host.Wrap(host.NameUnknown, err, "clearing object store %q failed", s.schema.Name)
			}
			if _, err := dbBucket.CreateBucket(name); err != nil {
				return nil, host.Wrap(host.NameUnknown, err, "clearing object store %q failed", s.schema.Name)
			}
		}
		if err := dbBucket.Bucket(names[0]).SetSequence(sequence); err != nil {
			return nil, host.Wrap(host.NameUnknown, err, "restoring the key generator failed")
		}
		return nil, nil
	})
}

func (s *objectStore) OpenCursor() *host.Request {
	return s.tx.runner.Submit(func() (any, error) {
		c := &cursor{store: s}
		return c.seek(nil)
	})
}

// --------------------------------------------------------------------------
// Store internals (runner goroutine only)
// --------------------------------------------------------------------------

func (s *objectStore) decode(data []byte) (any, error) {
	v, err := s.tx.conn.factory.codec.Unmarshal(data)
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "a stored record cannot be decoded")
	}
	return v, nil
}

// indexEntry is an index bucket key that is written or removed
type indexEntry struct {
	bucket *bolt.Bucket
	key    []byte
}

func (s *objectStore) put(record any, explicit host.Key, overwrite bool) (any, error) {
	b, err := s.tx.recordBucket(s.schema)
	if err != nil {
		return nil, err
	}
	gen := &keyGenerator{store: s.schema.Name, bucket: b}
	key, err := host.ResolveKey(s.schema.StoreOptions, record, explicit, gen)
	if err != nil {
		return nil, err
	}
	enc := host.EncodeKey(key)

	old := b.Get(enc)
	if old != nil && !overwrite {
		return nil, host.Wrap(host.NameConstraint, host.ErrKeyExists,
			"a record with key %v already exists in object store %q", key, s.schema.Name)
	}

	data, err := s.tx.conn.factory.codec.Marshal(record)
	if err != nil {
		return nil, host.Wrap(host.NameData, err, "the record cannot be encoded")
	}

	var entries []indexEntry
	for _, idx := range s.schema.Indexes {
		ib, err := s.tx.indexBucket(s.schema, idx)
		if err != nil {
			return nil, err
		}
		for _, ik := range host.IndexKeys(record, idx.KeyPath, idx.MultiEntry) {
			prefix := host.EncodeKey(ik)
			if idx.Unique && indexTaken(ib, prefix, enc) {
				return nil, host.NewError(host.NameConstraint,
					"unique index %q of object store %q already contains key %v", idx.Name, s.schema.Name, ik)
			}
			entries = append(entries, indexEntry{bucket: ib, key: append(prefix, enc...)})
		}
	}

	if old != nil {
		if err := s.removeIndexEntries(enc, old); err != nil {
			return nil, err
		}
	}
	if err := b.Put(enc, data); err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "writing the record failed")
	}
	for _, e := range entries {
		if err := e.bucket.Put(e.key, enc); err != nil {
			return nil, host.Wrap(host.NameUnknown, err, "writing an index entry failed")
		}
	}
	if err := gen.apply(); err != nil {
		return nil, err
	}
	return key, nil
}

// removeIndexEntries deletes the index entries of the record stored as data
// under enc.
func (s *objectStore) removeIndexEntries(enc, data []byte) error {
	if len(s.schema.Indexes) == 0 {
		return nil
	}
	value, err := s.decode(data)
	if err != nil {
		return err
	}
	for _, idx := range s.schema.Indexes {
		ib, err := s.tx.indexBucket(s.schema, idx)
		if err != nil {
			return err
		}
		for _, ik := range host.IndexKeys(value, idx.KeyPath, idx.MultiEntry) {
			if err := ib.Delete(append(host.EncodeKey(ik), enc...)); err != nil {
				return host.Wrap(host.NameUnknown, err, "removing an index entry failed")
			}
		}
	}
	return nil
}

// createIndex creates the index bucket and fills it from the existing
// records. On failure the bucket is removed again.
func (s *objectStore) createIndex(name, keyPath string, opts host.IndexOptions) (any, error) {
	if s.schema.index(name) != nil {
		return nil, host.NewError(host.NameConstraint, "object store %q already has an index %q", s.schema.Name, name)
	}
	dbBucket, err := s.tx.databaseBucket()
	if err != nil {
		return nil, err
	}
	records, err := s.tx.recordBucket(s.schema)
	if err != nil {
		return nil, err
	}
	bucketName := indexBucketName(s.schema.Name, name)
	ib, err := dbBucket.CreateBucket(bucketName)
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "creating index %q failed", name)
	}

	fill := func() error {
		c := records.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			value, err := s.decode(v)
			if err != nil {
				return err
			}
			enc := append([]byte(nil), k...)
			for _, ik := range host.IndexKeys(value, keyPath, opts.MultiEntry) {
				prefix := host.EncodeKey(ik)
				if opts.Unique && indexTaken(ib, prefix, enc) {
					return host.NewError(host.NameConstraint,
						"cannot create unique index %q: key %v is used by more than one record", name, ik)
				}
				if err := ib.Put(append(prefix, enc...), enc); err != nil {
					return host.Wrap(host.NameUnknown, err, "writing an index entry failed")
				}
			}
		}
		return nil
	}
	if err := fill(); err != nil {
		_ = dbBucket.DeleteBucket(bucketName)
		return nil, err
	}

	idx := &indexSchema{Name: name, KeyPath: keyPath, IndexOptions: opts}
	s.schema.Indexes = append(s.schema.Indexes, idx)
	return &index{store: s, schema: idx}, nil
}

// indexTaken reports whether an entry with the given index key prefix
// belongs to a record other than primaryEnc.
func indexTaken(ib *bolt.Bucket, prefix, primaryEnc []byte) bool {
	c := ib.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if !bytes.Equal(v, primaryEnc) {
			return true
		}
	}
	return false
}

// countKeys counts the keys of b that start with prefix
func countKeys(b *bolt.Bucket, prefix []byte) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		n++
	}
	return n
}

// --------------------------------------------------------------------------
// Index (implements host.Index)
// --------------------------------------------------------------------------

type index struct {
	store  *objectStore
	schema *indexSchema
}

func (i *index) Name() string {
	return i.schema.Name
}

func (i *index) KeyPath() string {
	return i.schema.KeyPath
}

func (i *index) Unique() bool {
	return i.schema.Unique
}

func (i *index) MultiEntry() bool {
	return i.schema.MultiEntry
}

// lookup calls fn with the record of every entry whose index key equals key
// until fn returns false.
func (i *index) lookup(key host.Key, fn func(value any) bool) error {
	s := i.store
	records, err := s.tx.recordBucket(s.schema)
	if err != nil {
		return err
	}
	ib, err := s.tx.indexBucket(s.schema, i.schema)
	if err != nil {
		return err
	}
	prefix := host.EncodeKey(key)
	c := ib.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		data := records.Get(v)
		if data == nil {
			return host.NewError(host.NameUnknown, "index entry points to a missing record")
		}
		value, err := s.decode(data)
		if err != nil {
			return err
		}
		if !fn(value) {
			return nil
		}
	}
	return nil
}

func (i *index) Get(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	return i.store.tx.runner.Submit(func() (any, error) {
		var found any
		err := i.lookup(k, func(value any) bool {
			found = value
			return false
		})
		return found, err
	})
}

func (i *index) GetAll(key host.Key) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	return i.store.tx.runner.Submit(func() (any, error) {
		out := []any{}
		err := i.lookup(k, func(value any) bool {
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
		ib, err := i.store.tx.indexBucket(i.store.schema, i.schema)
		if err != nil {
			return nil, err
		}
		return countKeys(ib, nil), nil
	})
}

func (i *index) OpenCursor() *host.Request {
	return i.store.tx.runner.Submit(func() (any, error) {
		c := &cursor{store: i.store, index: i.schema}
		return c.seek(nil)
	})
}

// --------------------------------------------------------------------------
// Cursor (implements host.Cursor)
// --------------------------------------------------------------------------

// cursor is an immutable position. Every step opens a fresh bolt cursor
// and seeks past the previous position.
type cursor struct {
	store *objectStore
	index *indexSchema // nil for object store cursors

	pos        []byte
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
	return c.store.tx.runner.Submit(func() (any, error) {
		return c.seek(host.Successor(c.pos))
	})
}

// seek resolves the first position >= from (the first one if from is nil).
// The end of the range is returned as an untyped nil.
func (c *cursor) seek(from []byte) (any, error) {
	s := c.store
	records, err := s.tx.recordBucket(s.schema)
	if err != nil {
		return nil, err
	}
	bucket := records
	if c.index != nil {
		if bucket, err = s.tx.indexBucket(s.schema, c.index); err != nil {
			return nil, err
		}
	}

	bc := bucket.Cursor()
	var k, v []byte
	if from == nil {
		k, v = bc.First()
	} else {
		k, v = bc.Seek(from)
	}
	if k == nil {
		return nil, nil
	}

	next := &cursor{store: s, index: c.index, pos: append([]byte(nil), k...)}
	if c.index == nil {
		if next.key, _, err = host.DecodeKey(k); err != nil {
			return nil, err
		}
		next.primaryKey = next.key
		next.value, err = s.decode(v)
		return next, err
	}

	if next.key, _, err = host.DecodeKey(k); err != nil {
		return nil, err
	}
	if next.primaryKey, _, err = host.DecodeKey(v); err != nil {
		return nil, err
	}
	data := records.Get(v)
	if data == nil {
		return nil, host.NewError(host.NameUnknown, "index entry points to a missing record")
	}
	next.value, err = s.decode(data)
	return next, err
}

// --------------------------------------------------------------------------
// Key generator
// --------------------------------------------------------------------------

// keyGenerator is backed by the sequence of the record bucket, so it is
// persisted and rolled back together with the records.
type keyGenerator struct {
	store    string
	bucket   *bolt.Bucket
	observed float64
	pending  bool
}

func (g *keyGenerator) Next() (float64, error) {
	if g.bucket.Sequence() >= host.MaxGeneratedKey {
		return 0, host.NewError(host.NameConstraint, "the key generator of object store %q is exhausted", g.store)
	}
	n, err := g.bucket.NextSequence()
	if err != nil {
		return 0, host.Wrap(host.NameUnknown, err, "advancing the key generator failed")
	}
	return float64(n), nil
}

func (g *keyGenerator) Observe(key float64) {
	g.observed, g.pending = key, true
}

func (g *keyGenerator) apply() error {
	if !g.pending {
		return nil
	}
	next := math.Min(math.Floor(g.observed), host.MaxGeneratedKey)
	if next <= float64(g.bucket.Sequence()) {
		return nil
	}
	if err := g.bucket.SetSequence(uint64(next)); err != nil {
		return host.Wrap(host.NameUnknown, err, "raising the key generator failed")
	}
	return nil
}
